// Command blizzard-ptyd exposes a single PTY-backed shell over one Blizzard
// session: "shell.spawn" starts the process, "shell.write" sends input, and
// "shell.read" returns captured output as a binary reply. Built on
// ptyexec, which owns one shell per Blizzard session.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/peterje/blizzard"
	"github.com/peterje/blizzard/ptyexec"
	"github.com/peterje/blizzard/transport"
)

func main() {
	addr := flag.String("addr", ":7777", "TCP address to listen on")
	flag.Parse()

	ln, err := transport.ListenTCP(*addr)
	if err != nil {
		log.Fatalf("blizzard-ptyd: %v", err)
	}
	log.Printf("blizzard-ptyd: listening on %s", *addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("blizzard-ptyd: accept: %v", err)
			continue
		}
		go serve(conn)
	}
}

func serve(conn io.ReadWriteCloser) {
	var mu sync.Mutex
	var sh *ptyexec.Shell

	sess := blizzard.New(conn, false, blizzard.WithLogger(log.New(os.Stderr, "", log.LstdFlags)))

	sess.Expose("shell.spawn", func(params json.RawMessage, done blizzard.Done) {
		var args struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			done(err, nil)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if sh != nil {
			done(fmt.Errorf("shell already spawned"), nil)
			return
		}
		spawned, pid, err := ptyexec.Spawn(args.Command, args.Args)
		if err != nil {
			done(err, nil)
			return
		}
		sh = spawned
		done(nil, map[string]int{"pid": pid})
	})

	sess.Expose("shell.write", func(params json.RawMessage, done blizzard.Done) {
		var args struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			done(err, nil)
			return
		}

		mu.Lock()
		current := sh
		mu.Unlock()
		if current == nil {
			done(fmt.Errorf("shell not spawned"), nil)
			return
		}
		_, err := current.Write([]byte(args.Data))
		done(err, nil)
	})

	sess.Expose("shell.read", func(_ json.RawMessage, done blizzard.Done) {
		mu.Lock()
		current := sh
		mu.Unlock()
		if current == nil {
			done(fmt.Errorf("shell not spawned"), nil)
			return
		}
		done(nil, current.Drain())
	})

	sess.Expose("shell.resize", func(params json.RawMessage, done blizzard.Done) {
		var args struct {
			Rows uint16 `json:"rows"`
			Cols uint16 `json:"cols"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			done(err, nil)
			return
		}

		mu.Lock()
		current := sh
		mu.Unlock()
		if current == nil {
			done(fmt.Errorf("shell not spawned"), nil)
			return
		}
		done(current.Resize(args.Rows, args.Cols), nil)
	})

	// The shell's lifetime is bound to the session that spawned it.
	sess.OnEnd(func(error) {
		mu.Lock()
		current := sh
		mu.Unlock()
		if current != nil {
			current.Stop()
		}
	})

	if err := sess.Run(); err != nil {
		log.Printf("blizzard-ptyd: session %s ended: %v", sess.ID, err)
	}
}
