package notify

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Mailer sends acknowledgement-request emails to interns.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	skip   bool
}

// NewMailer creates a mailer. With skip set, messages are logged instead of
// sent, which keeps dev environments free of SMTP dependencies.
func NewMailer(host string, port int, user, password, from string, skip bool) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
		skip:   skip,
	}
}

// PendingAttempt emails an intern that an attempt awaits acknowledgement.
func (m *Mailer) PendingAttempt(toEmail, toName, moduleName string, seq int) error {
	subject := fmt.Sprintf("Evaluation #%d in %s awaits your acknowledgement", seq, moduleName)
	body := fmt.Sprintf(
		"Dear %s,\n\nA faculty evaluation (attempt #%d) has been recorded for you in the %s module.\nPlease log in and acknowledge it.\n",
		toName, seq, moduleName,
	)
	if m.skip {
		log.Printf("mail skipped: to=%s subject=%q", toEmail, subject)
		return nil
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}
