package registry

import (
	"errors"
	"testing"
	"time"
)

func TestRegister_Duplicate(t *testing.T) {
	reg := New()

	if err := reg.Register("wf-1", NewMailbox()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("wf-1", NewMailbox()); err == nil {
		t.Error("expected error registering duplicate id")
	}
	if got := reg.Count(); got != 1 {
		t.Errorf("got count=%d, want 1", got)
	}
}

func TestUnregister(t *testing.T) {
	reg := New()
	reg.Register("wf-1", NewMailbox())
	reg.Unregister("wf-1")

	if _, ok := reg.Lookup("wf-1"); ok {
		t.Error("worker still registered after unregister")
	}
	// Second unregister is a no-op
	reg.Unregister("wf-1")

	// The id can be reused
	if err := reg.Register("wf-1", NewMailbox()); err != nil {
		t.Errorf("re-register after unregister failed: %v", err)
	}
}

func TestCall_ReplyRoundTrip(t *testing.T) {
	reg := New()
	mb := NewMailbox()
	reg.Register("wf-1", mb)

	go func() {
		env := <-mb
		env.Reply <- "pong:" + env.Msg.(string)
	}()

	resp, err := reg.Call("wf-1", "ping", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "pong:ping" {
		t.Errorf("got %v, want pong:ping", resp)
	}
}

func TestCall_NotFound(t *testing.T) {
	reg := New()
	_, err := reg.Call("ghost", "ping", time.Second)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCall_Timeout(t *testing.T) {
	reg := New()
	mb := NewMailbox()
	reg.Register("wf-1", mb)
	// Nobody drains the mailbox's envelope reply

	_, err := reg.Call("wf-1", "ping", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("timeout must be distinct from not-found")
	}
}

func TestSend(t *testing.T) {
	reg := New()
	mb := NewMailbox()
	reg.Register("wf-1", mb)

	if err := reg.Send("wf-1", "notification"); err != nil {
		t.Fatal(err)
	}
	select {
	case env := <-mb:
		if env.Msg != "notification" {
			t.Errorf("got %v, want notification", env.Msg)
		}
		if env.Reply != nil {
			t.Error("fire-and-forget envelope has a reply channel")
		}
	default:
		t.Fatal("message not delivered")
	}
}

func TestSend_FullMailboxDoesNotBlock(t *testing.T) {
	reg := New()
	mb := NewMailbox()
	reg.Register("wf-1", mb)

	// A worker that stopped draining its mailbox
	for i := 0; i < DefaultMailboxSize; i++ {
		if err := reg.Send("wf-1", i); err != nil {
			t.Fatal(err)
		}
	}

	err := reg.Send("wf-1", "overflow")
	if !errors.Is(err, ErrMailboxFull) {
		t.Errorf("got %v, want ErrMailboxFull", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("mailbox-full must be distinct from not-found")
	}
}

func TestSend_NotFound(t *testing.T) {
	reg := New()
	if err := reg.Send("ghost", "notification"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestIDs(t *testing.T) {
	reg := New()
	reg.Register("wf-1", NewMailbox())
	reg.Register("wf-2", NewMailbox())

	ids := reg.IDs()
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
}
