package lib

import (
	"log"
	"os"
	"strconv"

	"github.com/wneessen/go-mail"
)

// GetSMTPClient builds a client for SMTP_PROVIDER (sendgrid, gmail, or the SMTP_* defaults).
func GetSMTPClient() (*mail.Client, error) {
	switch os.Getenv("SMTP_PROVIDER") {
	case "sendgrid":
		return SMTPNewSendGrid()
	case "gmail":
		return SMTPNewGmail()
	}
	return SMTPNewDefault()
}

func SMTPNewDefault() (*mail.Client, error) {
	return newSMTPClient(os.Getenv("SMTP_HOST"), smtpPort(), os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"))
}

func SMTPNewSendGrid() (*mail.Client, error) {
	return newSMTPClient("smtp.sendgrid.net", smtpPort(), os.Getenv("SENDGRID_SMTP_USER"), os.Getenv("SENDGRID_API_KEY"))
}

func SMTPNewGmail() (*mail.Client, error) {
	return newSMTPClient("smtp.gmail.com", 587, os.Getenv("GMAIL_USERNAME"), os.Getenv("GMAIL_PASSWORD"))
}

// SMTPConfigured is false when no host is set; invitation mail is skipped then.
func SMTPConfigured() bool {
	switch os.Getenv("SMTP_PROVIDER") {
	case "sendgrid":
		return os.Getenv("SENDGRID_API_KEY") != ""
	case "gmail":
		return os.Getenv("GMAIL_USERNAME") != ""
	}
	return os.Getenv("SMTP_HOST") != ""
}

func smtpPort() int {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		return 587
	}
	return port
}

func newSMTPClient(host string, port int, user, pass string) (*mail.Client, error) {
	c, err := mail.NewClient(
		host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(user),
		mail.WithPassword(pass),
	)
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil, err
	}
	return c, nil
}

// NewMailMsg builds the message without sending it.
func NewMailMsg(in *SendMailInput) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(in.FromName, in.From); err != nil {
		log.Printf("Failed to set From address: %s\n", err.Error())
		return nil, err
	}
	if err := msg.To(in.To...); err != nil {
		log.Printf("Failed to set To address: %s\n", err.Error())
		return nil, err
	}
	if in.ReplyTo != "" {
		if err := msg.ReplyTo(in.ReplyTo); err != nil {
			log.Printf("Failed to set Reply-To address: %s\n", err.Error())
		}
	}
	msg.Subject(in.Subject)
	if in.Html {
		msg.SetBodyString(mail.TypeTextHTML, in.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, in.Body)
	}
	return msg, nil
}

func SendMail(in *SendMailInput) error {
	msg, err := NewMailMsg(in)
	if err != nil {
		return err
	}
	c, err := GetSMTPClient()
	if err != nil {
		return err
	}
	return c.DialAndSend(msg)
}

type SendMailInput struct {
	From     string
	FromName string
	To       []string
	ReplyTo  string
	Subject  string
	Body     string
	Html     bool
}
