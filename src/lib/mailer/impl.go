package mailer

import (
	"bytes"
	"context"
	"crewcomms/src/lib"
	"crewcomms/src/models"
	"fmt"
	"html/template"
	"log"
	"strings"
)

var invitationTemplate = template.Must(template.New("invitation").Parse(
	`<p>You have been invited to join <strong>{{.CrewName}}</strong> as {{.Role}}.</p>` +
		`{{if .Message}}<blockquote>{{.Message}}</blockquote>{{end}}` +
		`<p><a href="{{.Link}}">Accept the invitation</a></p>` +
		`<p>This invitation expires on {{.Expires}}.</p>`,
))

type SendFunc func(input *lib.SendMailInput) error

// InvitationMailer e-mails crew invitations that carry an address.
type InvitationMailer struct {
	From     string
	FromName string
	AppURL   string
	send     SendFunc
}

func NewInvitationMailer(from, appURL string, send SendFunc) *InvitationMailer {
	if send == nil {
		send = lib.SendMail
	}
	return &InvitationMailer{From: from, FromName: "Crew Comms", AppURL: strings.TrimRight(appURL, "/"), send: send}
}

func (m *InvitationMailer) SendInvitation(ctx context.Context, inv *models.Invitation) error {
	if inv.Email == "" {
		return nil
	}
	body, err := m.invitationBody(inv)
	if err != nil {
		return err
	}
	input := &lib.SendMailInput{
		From:     m.From,
		FromName: m.FromName,
		To:       []string{inv.Email},
		Subject:  fmt.Sprintf("You're invited to join %s", inv.CrewName),
		Body:     body,
		Html:     true,
	}
	if err := m.send(input); err != nil {
		log.Printf("[Mailer] invitation %s to %s failed: %s\n", inv.ID, inv.Email, err.Error())
		return err
	}
	return nil
}

// invitationBody renders the HTML body. Crew names and messages are user input and get escaped.
func (m *InvitationMailer) invitationBody(inv *models.Invitation) (string, error) {
	var b bytes.Buffer
	err := invitationTemplate.Execute(&b, map[string]any{
		"CrewName": inv.CrewName,
		"Role":     string(inv.Role),
		"Message":  inv.Message,
		"Link":     fmt.Sprintf("%s/invitations/%s/%s", m.AppURL, inv.CrewID, inv.ID),
		"Expires":  inv.ExpiresAt.Format("Jan 2, 2006"),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
