package dialogue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/vestibule/internal/identify"
	"github.com/alecgard/vestibule/internal/metrics"
)

// fakeClock is a controllable time source for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSender records every outbound message.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	chatID int64
	text   string
}

func (s *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (s *fakeSender) last() (sentMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMessage{}, false
	}
	return s.sent[len(s.sent)-1], true
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type completion struct {
	userID int64
	fields map[string]string
}

// newTestEngine wires an engine with a fake clock and sender and captures
// completions on the returned channel.
func newTestEngine(clock *fakeClock, sender *fakeSender, ttl time.Duration) (*Engine, chan completion) {
	e := NewEngine(identify.Form(), sender, ttl, time.Minute, metrics.New())
	e.now = clock.Now

	done := make(chan completion, 1)
	e.SetOnComplete(func(_ context.Context, userID int64, fields map[string]string) {
		done <- completion{userID: userID, fields: fields}
	})
	return e, done
}

func TestEnterSendsFirstPrompt(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, _ := newTestEngine(clock, sender, time.Hour)

	if err := e.Enter(context.Background(), 10); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if !e.Active(10) {
		t.Fatal("expected active session after Enter")
	}

	msg, ok := sender.last()
	if !ok {
		t.Fatal("expected a prompt to be sent")
	}
	if msg.chatID != 10 {
		t.Errorf("prompt went to chat %d, want 10", msg.chatID)
	}
	if !strings.Contains(msg.text, "surname") {
		t.Errorf("first prompt should ask for the surname, got %q", msg.text)
	}
}

func TestSubmitAdvancesThroughForm(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, done := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)

	if !e.Submit(ctx, 10, "Ivanov", false) {
		t.Fatal("surname submission should be consumed")
	}
	if msg, _ := sender.last(); !strings.Contains(msg.text, "given name") {
		t.Errorf("expected given-name prompt after surname, got %q", msg.text)
	}

	if !e.Submit(ctx, 10, "Petr", false) {
		t.Fatal("given-name submission should be consumed")
	}
	if !e.Submit(ctx, 10, "5zh", false) {
		t.Fatal("class submission should be consumed")
	}

	select {
	case c := <-done:
		if c.userID != 10 {
			t.Errorf("completion for user %d, want 10", c.userID)
		}
		want := map[string]string{
			identify.FieldSurname:   "Ivanov",
			identify.FieldFirstName: "Petr",
			identify.FieldClass:     "5ZH",
		}
		for k, v := range want {
			if c.fields[k] != v {
				t.Errorf("field %s = %q, want %q", k, c.fields[k], v)
			}
		}
	default:
		t.Fatal("expected a completion after the last field")
	}

	if e.Active(10) {
		t.Fatal("session should be destroyed on completion")
	}
}

func TestRejectionKeepsState(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, done := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)
	_ = e.Submit(ctx, 10, "Ivanov", false)
	_ = e.Submit(ctx, 10, "Petr", false)

	// Reject the class field three times; the session must stay on the same
	// step with no partial writes.
	for _, bad := range []string{"0A", "12B", "abc"} {
		if !e.Submit(ctx, 10, bad, false) {
			t.Fatalf("rejected submission %q should still be consumed", bad)
		}
		select {
		case <-done:
			t.Fatalf("rejection of %q must not complete the dialogue", bad)
		default:
		}
	}
	if msg, _ := sender.last(); !strings.Contains(msg.text, "NUMBER then LETTER") {
		t.Errorf("expected format rejection reason, got %q", msg.text)
	}

	// A valid value still completes from the same step.
	_ = e.Submit(ctx, 10, "5A", false)
	select {
	case c := <-done:
		if c.fields[identify.FieldClass] != "5A" {
			t.Errorf("class = %q, want 5A", c.fields[identify.FieldClass])
		}
	default:
		t.Fatal("expected completion after valid class")
	}
}

func TestSubmitIgnoresBotsAndStart(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, done := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)
	before := sender.count()

	if e.Submit(ctx, 10, "Ivanov", true) {
		t.Fatal("bot-authored message should not be consumed")
	}
	if !e.Submit(ctx, 10, "/start", false) {
		t.Fatal("raw /start inside a dialogue should be swallowed")
	}
	if sender.count() != before {
		t.Fatal("ignored messages must not trigger replies")
	}
	select {
	case <-done:
		t.Fatal("ignored messages must not advance the dialogue")
	default:
	}

	// The session is still on step 0.
	_ = e.Submit(ctx, 10, "Ivanov", false)
	if msg, _ := sender.last(); !strings.Contains(msg.text, "given name") {
		t.Errorf("session should still have been at the surname step, got %q", msg.text)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, _ := newTestEngine(clock, sender, time.Hour)

	if e.Submit(context.Background(), 99, "hello", false) {
		t.Fatal("submission without a session should not be consumed")
	}
	if sender.count() != 0 {
		t.Fatal("no reply expected without a session")
	}
}

func TestReEnterReplacesSession(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, done := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)
	_ = e.Submit(ctx, 10, "Ivanov", false)

	// Re-entering discards the partial answers.
	_ = e.Enter(ctx, 10)
	_ = e.Submit(ctx, 10, "Petrov", false)
	_ = e.Submit(ctx, 10, "Anna", false)
	_ = e.Submit(ctx, 10, "9V", false)

	select {
	case c := <-done:
		if c.fields[identify.FieldSurname] != "Petrov" {
			t.Errorf("surname = %q, want the post-reenter value", c.fields[identify.FieldSurname])
		}
	default:
		t.Fatal("expected completion")
	}
}

func TestCancel(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, _ := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)
	_ = e.Submit(ctx, 10, "Ivanov", false)

	if !e.Cancel(ctx, 10) {
		t.Fatal("cancel of an active session should report true")
	}
	if msg, _ := sender.last(); msg.text != "Cancelled." {
		t.Errorf("expected cancellation confirmation, got %q", msg.text)
	}
	if e.Active(10) {
		t.Fatal("session should be gone after cancel")
	}

	if e.Cancel(ctx, 10) {
		t.Fatal("cancel without a session should be a no-op")
	}
	if e.Submit(ctx, 10, "anything", false) {
		t.Fatal("submission after cancel should behave as no active session")
	}
}

func TestNonTextReprompt(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, done := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)

	if !e.SubmitNonText(ctx, 10) {
		t.Fatal("non-text during a session should be consumed")
	}
	if msg, _ := sender.last(); !strings.Contains(msg.text, "plain text") {
		t.Errorf("expected a resend-as-text reprompt, got %q", msg.text)
	}
	select {
	case <-done:
		t.Fatal("non-text input must not advance the dialogue")
	default:
	}

	if e.SubmitNonText(ctx, 11) {
		t.Fatal("non-text without a session should not be consumed")
	}
}

func TestIdleExpiry(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, _ := newTestEngine(clock, sender, 30*time.Minute)

	ctx := context.Background()
	_ = e.Enter(ctx, 10)
	_ = e.Enter(ctx, 11)

	clock.Advance(10 * time.Minute)
	_ = e.Submit(ctx, 11, "Ivanov", false) // refreshes 11 only

	clock.Advance(25 * time.Minute)
	before := sender.count()
	e.sweep()

	if e.Active(10) {
		t.Fatal("session 10 idle past the TTL should be expired")
	}
	if !e.Active(11) {
		t.Fatal("session 11 was touched recently and must survive the sweep")
	}
	if sender.count() != before {
		t.Fatal("expiry must be silent")
	}

	if e.Submit(ctx, 10, "Ivanov", false) {
		t.Fatal("submission after expiry should behave as no active session")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	clock := newFakeClock(time.Now())
	sender := &fakeSender{}
	e, done := newTestEngine(clock, sender, time.Hour)

	ctx := context.Background()
	_ = e.Enter(ctx, 1)
	_ = e.Enter(ctx, 2)

	_ = e.Submit(ctx, 1, "Ivanov", false)
	_ = e.Submit(ctx, 2, "Petrov", false)
	_ = e.Submit(ctx, 2, "Anna", false)
	_ = e.Submit(ctx, 2, "7B", false)

	select {
	case c := <-done:
		if c.userID != 2 {
			t.Fatalf("completion for user %d, want 2", c.userID)
		}
		if c.fields[identify.FieldSurname] != "Petrov" {
			t.Errorf("user 2 surname = %q, want Petrov", c.fields[identify.FieldSurname])
		}
	default:
		t.Fatal("expected completion for user 2")
	}

	if !e.Active(1) {
		t.Fatal("user 1's session must be unaffected by user 2's completion")
	}
}
