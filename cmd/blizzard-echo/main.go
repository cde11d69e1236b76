// Command blizzard-echo is a minimal two-role demo of the Blizzard
// protocol: the listener exposes "add" and answers requests; the dialer
// connects, issues one "add" request, and prints the reply. With -ws the
// same session runs over a WebSocket instead of a raw TCP socket.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/peterje/blizzard"
	"github.com/peterje/blizzard/transport"
)

func main() {
	mode := flag.String("mode", "listen", "listen|dial")
	addr := flag.String("addr", "localhost:7788", "address to listen on or dial")
	ws := flag.Bool("ws", false, "run the session over a WebSocket instead of raw TCP")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	switch *mode {
	case "listen":
		if *ws {
			runWSListener(*addr, logger)
		} else {
			runListener(*addr, logger)
		}
	case "dial":
		var conn io.ReadWriteCloser
		var err error
		if *ws {
			conn, err = dialWS(*addr)
		} else {
			conn, err = transport.DialTCP(*addr)
		}
		if err != nil {
			log.Fatalf("blizzard-echo: %v", err)
		}
		runDialer(conn, logger)
	default:
		log.Fatalf("blizzard-echo: unknown -mode %q", *mode)
	}
}

func runListener(addr string, logger *log.Logger) {
	ln, err := transport.ListenTCP(addr)
	if err != nil {
		log.Fatalf("blizzard-echo: %v", err)
	}
	logger.Printf("blizzard-echo: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Printf("blizzard-echo: accept: %v", err)
			continue
		}
		go answer(conn, logger)
	}
}

var upgrader = websocket.Upgrader{}

func runWSListener(addr string, logger *log.Logger) {
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("blizzard-echo: upgrade: %v", err)
			return
		}
		answer(transport.NewWSConn(ws), logger)
	})
	logger.Printf("blizzard-echo: listening on ws://%s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func dialWS(addr string) (io.ReadWriteCloser, error) {
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		return nil, err
	}
	return transport.NewWSConn(ws), nil
}

func answer(conn io.ReadWriteCloser, logger *log.Logger) {
	sess := blizzard.New(conn, false, blizzard.WithLogger(logger))
	sess.Expose("add", func(params json.RawMessage, done blizzard.Done) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil {
			done(err, nil)
			return
		}
		sum := 0
		for _, n := range args {
			sum += n
		}
		done(nil, sum)
	})
	if err := sess.Run(); err != nil {
		logger.Printf("blizzard-echo: session %s ended: %v", sess.ID, err)
	}
}

func runDialer(conn io.ReadWriteCloser, logger *log.Logger) {
	sess := blizzard.New(conn, true, blizzard.WithLogger(logger))
	go func() {
		if err := sess.Run(); err != nil {
			logger.Printf("blizzard-echo: session %s ended: %v", sess.ID, err)
		}
	}()

	<-sess.Ready()

	result := make(chan int, 1)
	err := sess.Request("add", []int{1, 2}, func(rerr *blizzard.RemoteError, reply any) {
		if rerr != nil {
			logger.Printf("blizzard-echo: add failed: %s", rerr.Message)
			os.Exit(1)
		}
		data, _ := json.Marshal(reply)
		var n int
		json.Unmarshal(data, &n)
		result <- n
	})
	if err != nil {
		log.Fatalf("blizzard-echo: request: %v", err)
	}

	sum := <-result
	logger.Printf("blizzard-echo: 1 + 2 = %d", sum)
	sess.End(nil)
}
