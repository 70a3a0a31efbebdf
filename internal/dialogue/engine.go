// Package dialogue runs the multi-step identification dialogue. It keeps one
// in-memory session per user, advances each session through the ordered form
// fields, and reports completion to a registered callback.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alecgard/vestibule/internal/identify"
	"github.com/alecgard/vestibule/internal/metrics"
)

// Sender delivers outbound messages. For private chats the chat id equals the
// user id.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// CompletionFunc receives the full validated form once the last field is
// accepted. The session is already destroyed when it is invoked.
type CompletionFunc func(ctx context.Context, userID int64, fields map[string]string)

// session tracks one user's progress through the form.
type session struct {
	step      int
	collected map[string]string
	touched   time.Time
}

// Engine is the keyed session store and step runner. It is safe for
// concurrent use; all in-memory mutation happens before any outbound send.
type Engine struct {
	mu       sync.Mutex
	sessions map[int64]*session

	fields     []identify.Field
	sender     Sender
	onComplete CompletionFunc

	ttl           time.Duration
	sweepInterval time.Duration
	done          chan struct{}
	now           func() time.Time // injectable clock for testing

	metrics *metrics.Metrics
}

// NewEngine creates an Engine over the given ordered fields. Sessions idle
// for longer than ttl are destroyed by the background sweep started with
// Start.
func NewEngine(fields []identify.Field, sender Sender, ttl, sweepInterval time.Duration, m *metrics.Metrics) *Engine {
	return &Engine{
		sessions:      make(map[int64]*session),
		fields:        fields,
		sender:        sender,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
		now:           time.Now,
		metrics:       m,
	}
}

// SetOnComplete registers the completion callback. Must be called before the
// first Submit.
func (e *Engine) SetOnComplete(fn CompletionFunc) {
	e.onComplete = fn
}

// Enter creates a fresh session at step 0 for userID, replacing any existing
// one, and sends the first prompt.
func (e *Engine) Enter(ctx context.Context, userID int64) error {
	e.mu.Lock()
	e.sessions[userID] = &session{
		collected: make(map[string]string),
		touched:   e.now(),
	}
	e.updateActiveGauge()
	e.mu.Unlock()

	e.metrics.SessionsStartedTotal.Inc()
	return e.sender.SendMessage(ctx, userID, e.fields[0].Prompt)
}

// Active reports whether userID has a session in progress.
func (e *Engine) Active(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[userID]
	return ok
}

// Submit feeds one text message into userID's session. It returns false,
// silently, when the sender is a bot or no session exists; the caller decides
// what an unconsumed message means. A raw "/start" inside a dialogue is
// ignored rather than validated.
func (e *Engine) Submit(ctx context.Context, userID int64, text string, isBot bool) bool {
	if isBot {
		return false
	}
	text = strings.TrimSpace(text)

	e.mu.Lock()
	s, ok := e.sessions[userID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	s.touched = e.now()

	if text == "/start" {
		e.mu.Unlock()
		return true
	}

	field := e.fields[s.step]
	value, rej := field.Validate(text)
	if rej != nil {
		e.mu.Unlock()
		e.metrics.IncValidationRejection(field.Name)
		e.send(ctx, userID, rej.Reason)
		return true
	}

	s.collected[field.Name] = value
	s.step++

	if s.step == len(e.fields) {
		fields := s.collected
		delete(e.sessions, userID)
		e.updateActiveGauge()
		e.mu.Unlock()

		e.metrics.SessionsCompletedTotal.Inc()
		if e.onComplete != nil {
			e.onComplete(ctx, userID, fields)
		}
		return true
	}

	next := e.fields[s.step]
	e.mu.Unlock()
	e.send(ctx, userID, next.Prompt)
	return true
}

// SubmitNonText handles a non-text message from userID. The step is not
// consumed; the user is asked to resend the current field as text. Returns
// false when no session exists.
func (e *Engine) SubmitNonText(ctx context.Context, userID int64) bool {
	e.mu.Lock()
	s, ok := e.sessions[userID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	s.touched = e.now()
	noun := e.fields[s.step].Noun
	e.mu.Unlock()

	e.send(ctx, userID, fmt.Sprintf("Send me your %s as plain text.", noun))
	return true
}

// Cancel destroys userID's session if one exists and confirms to the user.
// Returns whether a session existed.
func (e *Engine) Cancel(ctx context.Context, userID int64) bool {
	e.mu.Lock()
	_, ok := e.sessions[userID]
	if ok {
		delete(e.sessions, userID)
		e.updateActiveGauge()
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	e.metrics.SessionsCancelledTotal.Inc()
	e.send(ctx, userID, "Cancelled.")
	return true
}

// Start runs the idle-session sweep on a timer. It blocks until Stop is
// called or the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.sweep()
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

// Stop signals the sweep goroutine to exit.
func (e *Engine) Stop() {
	close(e.done)
}

// sweep destroys sessions untouched for longer than the TTL. Expiry is
// silent: the user is not notified. Because touched is re-read under the
// lock, a session refreshed by a concurrent Submit is never reaped.
func (e *Engine) sweep() {
	now := e.now()

	e.mu.Lock()
	var expired int
	for id, s := range e.sessions {
		if now.Sub(s.touched) > e.ttl {
			delete(e.sessions, id)
			expired++
		}
	}
	if expired > 0 {
		e.updateActiveGauge()
	}
	e.mu.Unlock()

	if expired > 0 {
		e.metrics.SessionsExpiredTotal.Add(float64(expired))
		slog.Info("expired idle sessions", "count", expired)
	}
}

// updateActiveGauge refreshes the active-session gauge. Must be called with
// e.mu held.
func (e *Engine) updateActiveGauge() {
	e.metrics.ActiveSessions.Set(float64(len(e.sessions)))
}

// send delivers a reply and logs delivery failures instead of returning them;
// a failed prompt must not disturb the session state.
func (e *Engine) send(ctx context.Context, userID int64, text string) {
	if err := e.sender.SendMessage(ctx, userID, text); err != nil {
		slog.Error("failed to send dialogue message", "user_id", userID, "error", err)
	}
}
