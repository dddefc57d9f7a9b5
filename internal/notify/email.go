package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/config"
)

const approvalEmailTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2>Nova adesão aprovada 🎉</h2>
  <p>O processo de adesão de <strong>{{.Name}}</strong> foi concluído em {{.Date}}.</p>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td><strong>Plano</strong></td><td>{{.PlanDescription}}</td></tr>
    <tr><td><strong>Mensalidade</strong></td><td>R$ {{printf "%.2f" .MonthlyPrice}}</td></tr>
    <tr><td><strong>E-mail</strong></td><td>{{.Email}}</td></tr>
    <tr><td><strong>Telefone</strong></td><td>{{.Phone}}</td></tr>
  </table>
  {{if .Dependents}}
  <h3>Dependentes</h3>
  <ul>
    {{range .Dependents}}<li>{{.Name}} ({{.Relationship}})</li>{{end}}
  </ul>
  {{end}}
  {{if .DocumentURL}}<p><a href="{{.DocumentURL}}">Baixar proposta em PDF</a></p>{{end}}
</body>
</html>`

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel delivers approval notifications over SMTP.
type EmailChannel struct {
	dialer mailDialer
	tmpl   *template.Template
	from   string
	to     []string
	logger *zap.Logger
}

// NewEmailChannel constructs the SMTP channel from configuration.
func NewEmailChannel(cfg config.EmailConfig, logger *zap.Logger) *EmailChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	recipients := make([]string, 0, 1)
	for _, addr := range strings.Split(cfg.To, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return &EmailChannel{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		tmpl:   template.Must(template.New("approval_email").Parse(approvalEmailTemplate)),
		from:   cfg.From,
		to:     recipients,
		logger: logger,
	}
}

// Name identifies this channel in notification logs.
func (c *EmailChannel) Name() models.NotificationChannel {
	return models.ChannelEmail
}

// Send renders and delivers the approval email. gomail has no context
// support, so the dial runs in a goroutine and the deadline is enforced
// here; an abandoned dial finishes in the background.
func (c *EmailChannel) Send(ctx context.Context, payload models.NotificationPayload) (json.RawMessage, error) {
	if len(c.to) == 0 {
		return nil, fmt.Errorf("email channel has no destination configured")
	}

	var body bytes.Buffer
	if err := c.tmpl.Execute(&body, payload); err != nil {
		return nil, fmt.Errorf("render approval email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", c.to...)
	m.SetHeader("Subject", fmt.Sprintf("Adesão aprovada: %s", payload.Name))
	m.SetBody("text/html", body.String())
	if len(payload.Attachment) > 0 {
		name := payload.AttachmentName
		if name == "" {
			name = "proposta.pdf"
		}
		m.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(payload.Attachment)
			return err
		}))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("send approval email: %w", ctx.Err())
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("send approval email: %w", err)
		}
	}

	response, _ := json.Marshal(map[string]interface{}{
		"recipients": c.to,
		"subject":    fmt.Sprintf("Adesão aprovada: %s", payload.Name),
	})
	return response, nil
}
