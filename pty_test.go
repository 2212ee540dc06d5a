package headlessterm

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSessionEchoesChildOutput(t *testing.T) {
	sess, err := NewSession("/bin/cat", nil, WithSize(24, 80))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	if _, err := sess.SendData([]byte("hello\n")); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return sess.Terminal.LineContent(0) == "hello"
	})
}

func TestSessionScrollByClampsToRange(t *testing.T) {
	sess, err := NewSession("/bin/cat", nil, WithSize(5, 20))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if got := sess.ScrollBy(-10); got != 0 {
		t.Errorf("ScrollBy(-10) on empty scrollback = %d, want 0", got)
	}

	if got := sess.ScrollBy(10); got != sess.Terminal.ScrollbackLen() {
		t.Errorf("ScrollBy(10) = %d, want %d", got, sess.Terminal.ScrollbackLen())
	}
}

func TestSessionResizePropagatesToTerminal(t *testing.T) {
	sess, err := NewSession("/bin/cat", nil, WithSize(24, 80))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sess.Resize(30, 100)

	if rows := sess.Terminal.Rows(); rows != 30 {
		t.Errorf("Rows() = %d, want 30", rows)
	}
	if cols := sess.Terminal.Cols(); cols != 100 {
		t.Errorf("Cols() = %d, want 100", cols)
	}
}

func TestSessionStartIsIdempotent(t *testing.T) {
	sess, err := NewSession("/bin/cat", nil, WithSize(24, 80))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer sess.Stop()

	if err := sess.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
}

func TestSessionDefaultScrollbackCap(t *testing.T) {
	sess, err := NewSession("/bin/cat", nil, WithSize(24, 80))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if got := sess.Terminal.MaxScrollback(); got != maxHistoryLines {
		t.Errorf("MaxScrollback() = %d, want %d", got, maxHistoryLines)
	}
}
