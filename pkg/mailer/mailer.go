package mailer

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"estatecore/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("mailer", fx.Provide(NewSMTPMailer))

// Email is one outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer dispatches email notifications. The send result carries provider
// info recorded in the contract audit trail.
type Mailer interface {
	Send(ctx context.Context, email Email) (providerInfo string, err error)
}

type smtpMailer struct {
	host string
	port int
	user string
	pass string
	from string
}

type Params struct {
	fx.In
	Config *config.Config
}

func NewSMTPMailer(p Params) Mailer {
	return &smtpMailer{
		host: p.Config.SMTP.Host,
		port: p.Config.SMTP.Port,
		user: p.Config.SMTP.User,
		pass: p.Config.SMTP.Password,
		from: p.Config.SMTP.From,
	}
}

func (m *smtpMailer) Send(ctx context.Context, email Email) (string, error) {
	if email.To == "" {
		return "", fmt.Errorf("no recipient address")
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	body := email.HTML
	contentType := "text/html; charset=utf-8"
	if body == "" {
		body = email.Text
		contentType = "text/plain; charset=utf-8"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", email.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "\r\n%s\r\n", body)

	zap.L().Info("[Mailer] sending email",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)

	if err := smtp.SendMail(addr, auth, m.from, []string{email.To}, []byte(b.String())); err != nil {
		return "", err
	}

	return fmt.Sprintf("smtp:%s", addr), nil
}
