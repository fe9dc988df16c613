package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// ErrNoAddress means the recipient cannot be reached on a channel at all,
// which is not counted as a failed delivery.
var ErrNoAddress = errors.New("recipient has no address for this channel")

type Recipient struct {
	Name  string
	Phone string
	Email string
}

type Note struct {
	Subject string
	Body    string
}

type Channel interface {
	Name() string
	Deliver(ctx context.Context, recipient Recipient, note Note) error
}

// SMSSender is satisfied by telephony.Client.
type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, body string) error
}

type SMSChannel struct {
	Sender SMSSender
}

func NewSMSChannel(sender SMSSender) *SMSChannel {
	return &SMSChannel{Sender: sender}
}

func (channel *SMSChannel) Name() string {
	return ChannelSMS
}

func (channel *SMSChannel) Deliver(ctx context.Context, recipient Recipient, note Note) error {
	if recipient.Phone == "" {
		return ErrNoAddress
	}

	return channel.Sender.SendSMS(ctx, recipient.Phone, note.Body)
}

type SendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

type EmailChannel struct {
	Addr     string
	From     string
	Auth     smtp.Auth
	SendMail SendMailFunc
}

// NewEmailChannelFromConfig returns nil when SMTP_HOST is not set.
func NewEmailChannelFromConfig() *EmailChannel {
	if config.Conf.SMTPHost == "" {
		return nil
	}

	var auth smtp.Auth
	if config.Conf.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.Conf.SMTPUsername, config.Conf.SMTPPassword, config.Conf.SMTPHost)
	}

	return &EmailChannel{
		Addr:     net.JoinHostPort(config.Conf.SMTPHost, config.Conf.SMTPPort),
		From:     config.Conf.SMTPFrom,
		Auth:     auth,
		SendMail: smtp.SendMail,
	}
}

func (channel *EmailChannel) Name() string {
	return ChannelEmail
}

// Deliver does not honor ctx once the SMTP exchange has started.
func (channel *EmailChannel) Deliver(ctx context.Context, recipient Recipient, note Note) error {
	if recipient.Email == "" {
		return ErrNoAddress
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	err := channel.SendMail(channel.Addr, channel.Auth, channel.From, []string{recipient.Email},
		composeMail(channel.From, recipient.Email, note))
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient.Email, err)
	}

	return nil
}

func composeMail(from, to string, note Note) []byte {
	var builder strings.Builder

	builder.WriteString("From: " + headerValue(from) + "\r\n")
	builder.WriteString("To: " + headerValue(to) + "\r\n")
	builder.WriteString("Subject: " + headerValue(note.Subject) + "\r\n")
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(strings.ReplaceAll(note.Body, "\n", "\r\n"))

	return []byte(builder.String())
}

func headerValue(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}
