package mail

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// LogDispatcher writes messages to the logger instead of sending them. It is
// the development default and keeps a copy of every message for inspection.
type LogDispatcher struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

var _ Dispatcher = (*LogDispatcher)(nil)

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Send renders msg and logs it.
func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Render(); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	if !msg.HasRecipients() {
		return fmt.Errorf("email has no recipients")
	}

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	d.logger.Info("email dispatched",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
		zap.Int("attachments", len(msg.Attachments)),
	)
	d.logger.Debug("email body", zap.String("text", msg.Text))

	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	return nil
}

// Sent returns a copy of the messages dispatched so far.
func (d *LogDispatcher) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.sent))
	copy(out, d.sent)
	return out
}
