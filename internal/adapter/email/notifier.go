// Package email implements a notifier.Notifier that delivers lease
// notifications over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/LeaseForge/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier sends email notifications via SMTP.
type Notifier struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

// NewNotifier creates a new email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Notifier{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{DirectMessages: true}
}

// Send delivers the notification to n.To as a plain-text message.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" {
		return notifier.ErrNotConfigured
	}
	if notification.To == "" {
		return notifier.ErrNoRecipient
	}
	to, err := mail.ParseAddress(notification.To)
	if err != nil {
		return fmt.Errorf("email recipient %q: %w", notification.To, err)
	}
	from, err := mail.ParseAddress(n.cfg.From)
	if err != nil {
		return fmt.Errorf("email sender %q: %w", n.cfg.From, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Password != "" {
		user := n.cfg.Username
		if user == "" {
			user = from.Address
		}
		auth = smtp.PlainAuth("", user, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	msg := n.compose(from, to, notification)
	if err := n.send(addr, auth, from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func (n *Notifier) compose(from, to *mail.Address, notification notifier.Notification) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headerSafe(v))
		b.WriteString("\r\n")
	}
	header("From", from.String())
	header("To", to.String())
	header("Subject", notification.Title)
	header("Date", n.now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	if notification.Template != "" {
		header("X-LeaseForge-Template", notification.Template)
	}
	b.WriteString("\r\n")

	b.WriteString(notification.Message)
	b.WriteString("\r\n")
	if len(notification.Data) > 0 {
		b.WriteString("\r\n")
		keys := make([]string, 0, len(notification.Data))
		for k := range notification.Data {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\r\n", k, notification.Data[k])
		}
	}
	return []byte(b.String())
}

// headerSafe strips line breaks so user-controlled values cannot inject headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
