package notificator

import (
	"fmt"
	"net/smtp"
	"strconv"
)

type EmailNotificator struct {
	SMTPHost   string
	SMTPPort   int
	SMTPSender string
	Recipient  string

	SMTPAuth smtp.Auth

	// sendMail is smtp.SendMail outside of tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotificator(SMTPHost string, SMTPPort int, SMTPUser, SMTPPassword, SMTPSender, recipient string) *EmailNotificator {
	auth := smtp.PlainAuth(
		"",
		SMTPUser,
		SMTPPassword,
		SMTPHost,
	)

	return &EmailNotificator{
		SMTPAuth:   auth,
		SMTPHost:   SMTPHost,
		SMTPPort:   SMTPPort,
		SMTPSender: SMTPSender,
		Recipient:  recipient,
		sendMail:   smtp.SendMail,
	}
}

func (e *EmailNotificator) Name() string {
	return "email"
}

func (e *EmailNotificator) Send(message string) error {
	addr := fmt.Sprintf("%s:%s", e.SMTPHost, strconv.Itoa(e.SMTPPort))
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.SMTPSender,
		e.Recipient,
		"PiTopUp alert",
		message,
	)
	if err := e.sendMail(addr, e.SMTPAuth, e.SMTPSender, []string{e.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %s", err)
	}
	return nil
}
