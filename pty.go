package headlessterm

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// readChunk is the maximum number of bytes pulled from the PTY per read.
const readChunk = 1024

// readPollInterval bounds how long a single PTY read blocks before the
// worker loop rechecks for a stop request. creack/pty hands back a plain
// *os.File, so SetReadDeadline stands in for the poll(2) loop a native
// terminal would use to interleave PTY reads with other event sources.
const readPollInterval = 100 * time.Millisecond

// Session wraps a Terminal with a spawned child process connected through
// a pseudo-terminal. It owns the process lifecycle: starting the shell,
// feeding its output into the Terminal, forwarding input, and restarting
// the child if it exits.
type Session struct {
	Terminal *Terminal

	shell string
	args  []string

	mu        sync.Mutex
	cmd       *exec.Cmd
	ptmx      *os.File
	stop      chan struct{}
	done      chan struct{}
	scrollPos int
}

// NewSession creates a Session that will run shell (with args) under a PTY
// once Start is called. Terminal options are forwarded to New; the
// terminal's response writer is bound to the PTY automatically.
func NewSession(shell string, args []string, opts ...Option) (*Session, error) {
	if shell == "" {
		shell = defaultShell()
	}

	s := &Session{shell: shell, args: args}

	term := New(opts...)
	switch term.ScrollbackProvider().(type) {
	case nil, NoopScrollback, *NoopScrollback:
		// No history storage was supplied: keep a bounded one.
		term.SetScrollbackProvider(NewMemoryScrollback(maxHistoryLines))
	default:
		term.SetMaxScrollback(maxHistoryLines)
	}
	s.Terminal = term

	return s, nil
}

// defaultShell picks the user's shell from $SHELL, falling back to /bin/sh.
func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// maxHistoryLines is the default scrollback cap applied to sessions created
// through NewSession. Direct Terminal.New callers are not affected.
const maxHistoryLines = 5000

// Start spawns the child process and begins the PTY read loop. Calling
// Start more than once on a live session is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.ptmx != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.spawn()
}

func (s *Session) spawn() error {
	rows, cols := s.Terminal.Rows(), s.Terminal.Cols()

	cmd := exec.Command(s.shell, s.args...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
	)
	if home := os.Getenv("HOME"); home != "" {
		cmd.Dir = home
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.ptmx = ptmx
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	s.Terminal.SetResponseProvider(ptmx)

	go s.readLoop(ptmx, cmd, stop, done)

	return nil
}

// readLoop pumps PTY output into the Terminal until the child exits or the
// session is stopped, then restarts the child unless stopped.
func (s *Session) readLoop(ptmx *os.File, cmd *exec.Cmd, stop, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readChunk)

	for {
		select {
		case <-stop:
			ptmx.Close()
			return
		default:
		}

		s.Terminal.DrainPaste()

		ptmx.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := ptmx.Read(buf)
		if n > 0 {
			s.Terminal.Write(buf[:n])
		}
		if err == nil {
			continue
		}
		if isTimeout(err) {
			continue
		}

		// EOF or hard read error: the child is gone.
		ptmx.Close()
		cmd.Wait()

		select {
		case <-stop:
			return
		default:
		}

		s.Terminal.WriteString("\r\n[program exited, restarting]\r\n")
		if err := s.spawn(); err != nil {
			return
		}
		return
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

// SendData writes raw bytes to the child process's standard input via the
// PTY, retrying until all bytes are written. On success the scrollback
// viewport offset is reset to 0 (the live screen).
func (s *Session) SendData(data []byte) (int, error) {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx == nil {
		return 0, os.ErrClosed
	}

	total := 0
	for total < len(data) {
		n, err := ptmx.Write(data[total:])
		total += n
		if err != nil {
			return total, err
		}
	}

	s.mu.Lock()
	s.scrollPos = 0
	s.mu.Unlock()
	return total, nil
}

// Resize changes both the Terminal's grid and the PTY's window size.
func (s *Session) Resize(rows, cols int) {
	s.Terminal.Resize(rows, cols)

	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx != nil {
		pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	}
}

// ScrollBy moves the scrollback viewport by delta lines (positive scrolls
// back into history, negative scrolls toward the live screen). The result
// is clamped to [0, ScrollbackLen()].
func (s *Session) ScrollBy(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.scrollPos + delta
	if pos < 0 {
		pos = 0
	}
	if max := s.Terminal.ScrollbackLen(); pos > max {
		pos = max
	}
	s.scrollPos = pos
	return pos
}

// ScrollPosition returns the current scrollback viewport offset, where 0
// means the live screen is visible.
func (s *Session) ScrollPosition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollPos
}

// StartRender is a hand-off point for hosts that render on their own
// schedule (e.g. a fixed-rate render loop tied to a GPU surface). It does
// not drive any rendering itself; the host reads Terminal state (Cell,
// Snapshot, dirty tracking) at whatever cadence it prefers.
func (s *Session) StartRender() {}

// Stop terminates the child process and the read loop. It blocks until the
// read loop has exited.
func (s *Session) Stop() error {
	s.mu.Lock()
	stop := s.stop
	done := s.done
	cmd := s.cmd
	s.mu.Unlock()

	if stop == nil {
		return nil
	}

	close(stop)
	<-done

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}

	s.mu.Lock()
	s.ptmx = nil
	s.mu.Unlock()

	return nil
}
