package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"workerwatch/internal/config"
)

// Email delivers deploy outcomes over SMTP
type Email struct {
	cfg config.Email
}

// NewEmail creates an SMTP notifier
func NewEmail(cfg config.Email) *Email {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Email{cfg: cfg}
}

// Notify implements Notifier
func (e *Email) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := renderEmail(ev)

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(e.cfg.Host, e.cfg.Port, e.cfg.Username, e.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func renderEmail(ev Event) (subject, body string) {
	o := ev.Outcome

	switch {
	case !o.OK():
		subject = fmt.Sprintf("[workerwatch] deploy #%d failed: %s", o.Seq, ev.Worker)
	case ev.Recovered:
		subject = fmt.Sprintf("[workerwatch] deploy #%d recovered: %s", o.Seq, ev.Worker)
	default:
		subject = fmt.Sprintf("[workerwatch] deploy #%d succeeded: %s", o.Seq, ev.Worker)
	}

	var detail string
	if o.OK() {
		url := ""
		if len(o.URLs) > 0 {
			url = fmt.Sprintf(`<p>URL: <a href="%s">%s</a></p>`, o.URLs[0], o.URLs[0])
		}
		version := ""
		if o.VersionID != "" {
			version = fmt.Sprintf("<p>Version: <code>%s</code></p>", o.VersionID)
		}
		detail = url + version
	} else {
		msg := "unknown error"
		if o.Err != nil {
			msg = strings.SplitN(o.Err.Error(), "\n", 2)[0]
		}
		detail = fmt.Sprintf("<p>Error: <code>%s</code></p>", msg)
	}

	body = fmt.Sprintf(`
	<html>
	<body style="font-family: Arial, sans-serif; color: #333;">
		<h2>%s</h2>
		<p>Worker: <code>%s</code></p>
		<p>Attempt: #%d</p>
		<p>Duration: %s</p>
		%s
	</body>
	</html>`, subject, ev.Worker, o.Seq, o.Duration.Round(100*time.Millisecond), detail)

	return subject, body
}
