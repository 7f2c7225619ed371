package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// ErrNoRecipients is returned when a message has no e-mail address to deliver to.
var ErrNoRecipients = errors.New("no e-mail recipients")

// SendgridNotifier delivers messages as e-mail through the SendGrid v3 API.
type SendgridNotifier struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     *zap.Logger
	do         func(rest.Request) (*rest.Response, error)
}

// NewSendgridNotifier builds an e-mail channel.
func NewSendgridNotifier(key, fromName, fromEmail string, logger *zap.Logger) *SendgridNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridNotifier{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
		logger:     logger,
		do:         sendgrid.API,
	}
}

// Send implements Notifier. Messages whose recipients have no e-mail address
// are skipped without error so the other channels still count as delivered.
func (n *SendgridNotifier) Send(ctx context.Context, msg Message) error {
	m, err := n.prepare(msg)
	if errors.Is(err, ErrNoRecipients) {
		n.logger.Debug("skipping e-mail without recipients", zap.String("lesson_id", msg.LessonID))
		return nil
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(n.key, sendgridEndpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := n.do(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (n *SendgridNotifier) prepare(msg Message) (*sgmail.SGMailV3, error) {
	p := sgmail.NewPersonalization()
	p.Subject = n.subjPrefix + msg.Subject

	var tos int
	for _, to := range msg.To {
		if to.Email == "" {
			continue
		}
		p.AddTos(sgmail.NewEmail(to.Name, to.Email))
		tos++
	}
	if tos == 0 {
		return nil, ErrNoRecipients
	}
	for _, cc := range msg.Cc {
		if cc.Email == "" {
			continue
		}
		p.AddCCs(sgmail.NewEmail(cc.Name, cc.Email))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m, nil
}
