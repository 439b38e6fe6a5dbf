// Package messenger is the group-chat collaborator: outbound text delivery
// and inbound message events.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ChuLiYu/wfh-check/pkg/types"
)

// ErrRejected is returned when the chat API answers but refuses the message.
var ErrRejected = errors.New("messenger: message rejected")

// Messenger sends text to a chat. Sends are fire-and-forget for callers.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// Sink receives inbound messages (the controller's inbox).
type Sink interface {
	Deliver(msg types.InboundMessage) error
}

// DeliveryError is a transient, non-fatal outbound failure. It is logged and
// never retried.
type DeliveryError struct {
	ChatID string
	TaskID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to chat %s failed (task %s): %v", e.ChatID, e.TaskID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Sent is one message captured by Recorder.
type Sent struct {
	ChatID string
	Text   string
}

// Recorder is an in-memory Messenger for dry runs and tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Fail error // when set, every Send returns it
}

func (r *Recorder) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.sent = append(r.sent, Sent{ChatID: chatID, Text: text})
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// LogMessenger writes outbound messages to a logger instead of a chat.
// Used by `run --dry-run`.
type LogMessenger struct {
	Logger *slog.Logger
}

func (l LogMessenger) Send(ctx context.Context, chatID, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "dry-run message", "chat", chatID, "text", text)
	return nil
}
