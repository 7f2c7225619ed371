package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogNotifier records messages in memory and writes them to the structured log.
// It is the default channel when no e-mail provider is configured.
type LogNotifier struct {
	logger *zap.Logger
	limit  int

	mu   sync.Mutex
	sent []Message
}

// NewLogNotifier keeps at most limit recent messages (0 keeps none).
func NewLogNotifier(logger *zap.Logger, limit int) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, limit: limit}
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recipients := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		recipients = append(recipients, r.UserID)
	}
	n.logger.Info("notification sent",
		zap.String("event", msg.Event),
		zap.String("lesson_id", msg.LessonID),
		zap.String("subject", msg.Subject),
		zap.Strings("to", recipients),
	)

	if n.limit <= 0 {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if len(n.sent) > n.limit {
		n.sent = n.sent[len(n.sent)-n.limit:]
	}
	return nil
}

// Sent returns a copy of the recorded messages, oldest first.
func (n *LogNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.sent))
	copy(out, n.sent)
	return out
}
