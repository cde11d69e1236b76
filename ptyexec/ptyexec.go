// Package ptyexec runs one real PTY-backed process and exposes its output
// as a replay buffer plus live subscription. One Shell is owned by one
// Blizzard session — a Blizzard connection is already the unit of session
// identity, so there's no separate id-keyed manager layer here.
package ptyexec

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

const replayBufSize = 100 * 1024

// Shell wraps one PTY-backed process.
type Shell struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan struct{}

	mu      sync.Mutex
	stopped bool

	replayMu  sync.Mutex
	replayBuf []byte

	subMu       sync.Mutex
	subscribers map[chan []byte]struct{}
}

// Spawn starts name with args under a PTY and begins fanning its output out
// to the replay buffer and any subscribers. Returns the child's pid.
func Spawn(name string, args []string) (*Shell, int, error) {
	cmd := exec.Command(name, args...)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 120})
	if err != nil {
		return nil, 0, fmt.Errorf("ptyexec: start pty: %w", err)
	}

	s := &Shell{
		cmd:         cmd,
		ptmx:        ptmx,
		done:        make(chan struct{}),
		subscribers: make(map[chan []byte]struct{}),
	}

	go s.pump()
	go s.monitor()

	return s, cmd.Process.Pid, nil
}

func (s *Shell) pump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.appendReplay(data)
			s.broadcast(data)
		}
		if err != nil {
			break
		}
	}
	s.subMu.Lock()
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.subMu.Unlock()
}

func (s *Shell) monitor() {
	s.cmd.Wait()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	close(s.done)
}

func (s *Shell) appendReplay(data []byte) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	s.replayBuf = append(s.replayBuf, data...)
	if len(s.replayBuf) > replayBufSize {
		s.replayBuf = s.replayBuf[len(s.replayBuf)-replayBufSize:]
	}
}

// Replay returns everything captured since the process started or since
// the last Drain, up to the replay cap, without consuming it — repeated
// calls return overlapping
// data, so a reconnecting caller can catch up on what it missed.
func (s *Shell) Replay() []byte {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	cp := make([]byte, len(s.replayBuf))
	copy(cp, s.replayBuf)
	return cp
}

// Drain returns and clears everything captured since the last Drain, the
// shape blizzard-ptyd's "shell.read" method needs for a one-shot binary
// reply rather than a growing replay log.
func (s *Shell) Drain() []byte {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	out := s.replayBuf
	s.replayBuf = nil
	return out
}

func (s *Shell) broadcast(data []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

// Subscribe returns a channel of live PTY output and an unsubscribe func.
func (s *Shell) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		delete(s.subscribers, ch)
		s.subMu.Unlock()
	}
}

// Write sends data to the PTY's stdin.
func (s *Shell) Write(data []byte) (int, error) {
	return s.ptmx.Write(data)
}

// Resize changes the PTY's window size.
func (s *Shell) Resize(rows, cols uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Stop terminates the child process and closes the PTY. Safe to call after
// the process has already exited.
func (s *Shell) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.cmd.Process != nil {
		s.cmd.Process.Signal(syscall.SIGTERM)
	}
	return s.ptmx.Close()
}

// Done returns a channel closed when the process exits.
func (s *Shell) Done() <-chan struct{} { return s.done }
