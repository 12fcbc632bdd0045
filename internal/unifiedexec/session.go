package unifiedexec

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"zarz/internal/logging"
)

const (
	readBufferSize  = 8192
	outputQueueSize = 256
	stdinQueueSize  = 128

	// readerGrace is how long the waiter lets the reader drain the PTY
	// after the child exits before closing the master side.
	readerGrace = 2 * time.Second

	// exitDrain bounds how long a call keeps reading after the child has
	// exited. A background grandchild can hold the terminal open.
	exitDrain = 200 * time.Millisecond
)

// session is one PTY-backed child process.
type session struct {
	id  int32
	cmd *exec.Cmd
	pty *os.File

	stdin  chan []byte
	output chan []byte

	// poll serializes calls reading output, so each response carries a
	// contiguous slice of it.
	poll sync.Mutex

	mu       sync.Mutex
	exitCode *int

	done       chan struct{}
	readerDone chan struct{}
}

// startSession spawns cmd on a new PTY and starts its reader, stdin
// writer and waiter goroutines.
func startSession(id int32, cmd *exec.Cmd) (*session, error) {
	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return nil, err
	}

	s := &session{
		id:         id,
		cmd:        cmd,
		pty:        master,
		stdin:      make(chan []byte, stdinQueueSize),
		output:     make(chan []byte, outputQueueSize),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	go s.readLoop()
	go s.writeLoop()
	go s.wait()

	return s, nil
}

// readLoop copies PTY output into the output queue until the PTY closes.
func (s *session) readLoop() {
	defer close(s.readerDone)
	defer close(s.output)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.publish(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logging.Debug("exec session read ended", "session", s.id, "error", err)
			}
			return
		}
	}
}

// publish queues a chunk, dropping the oldest one when nobody has
// collected output for a while.
func (s *session) publish(chunk []byte) {
	for {
		select {
		case s.output <- chunk:
			return
		default:
		}
		select {
		case <-s.output:
		default:
		}
	}
}

// writeLoop forwards queued stdin bytes to the PTY until the child exits.
func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.stdin:
			if _, err := s.pty.Write(data); err != nil {
				logging.Debug("exec session write failed", "session", s.id, "error", err)
			}
		}
	}
}

// wait blocks until the child exits and records its exit code once.
func (s *session) wait() {
	code := -1
	err := s.cmd.Wait()
	if s.cmd.ProcessState != nil {
		code = s.cmd.ProcessState.ExitCode()
	} else if err != nil {
		logging.Debug("exec session wait failed", "session", s.id, "error", err)
	}

	s.mu.Lock()
	s.exitCode = &code
	s.mu.Unlock()
	close(s.done)

	logging.Debug("exec session exited", "session", s.id, "exit_code", code)

	select {
	case <-s.readerDone:
	case <-time.After(readerGrace):
	}
	if err := s.pty.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logging.Debug("error closing pty", "session", s.id, "error", err)
	}
}

// ExitCode returns the exit code once the child has exited.
func (s *session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCode == nil {
		return 0, false
	}
	return *s.exitCode, true
}

// collect reads output for up to yield. It returns early once the child
// has exited and the output it wrote before exiting has been read.
func (s *session) collect(yield time.Duration) string {
	var b strings.Builder

	timer := time.NewTimer(yield)
	defer timer.Stop()

	output := s.output
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				// Reader hit EOF; keep waiting for the exit code.
				output = nil
				continue
			}
			b.Write(chunk)
		case <-s.done:
			drain(&b, output)
			return lossy(b.String())
		case <-timer.C:
			return lossy(b.String())
		}
	}
}

// drain reads the tail of an exited child's output until the reader closes
// the queue or exitDrain passes.
func drain(b *strings.Builder, output <-chan []byte) {
	if output == nil {
		return
	}
	timer := time.NewTimer(exitDrain)
	defer timer.Stop()
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				return
			}
			b.Write(chunk)
		case <-timer.C:
			return
		}
	}
}

// kill terminates the child. Used only at manager shutdown.
func (s *session) kill() {
	if s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logging.Debug("error killing exec session", "session", s.id, "error", err)
	}
}

func lossy(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
