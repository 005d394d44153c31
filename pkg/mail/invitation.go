package mail

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

const executorInvitationSubject = "You have been named an executor on Everkeep"

var executorInvitationTemplate = template.Must(template.New("executor-invitation").Parse(
	`Hello {{.Name}},

You have been designated as an executor. Use the following link to accept the invitation:
{{.Link}}

The link expires in {{.ExpiresInDays}} days. If you did not expect this email, you can ignore it.
`))

// ExecutorInvitation renders the executor invitation email for a recipient.
// The acceptance link embeds the raw invitation token, so the rendered body
// must only ever travel to the invited address.
func ExecutorInvitation(to, name, link string, expiry time.Duration) (Message, error) {
	days := int(expiry.Hours() / 24)
	if days < 1 {
		days = 1
	}

	var body strings.Builder
	err := executorInvitationTemplate.Execute(&body, struct {
		Name          string
		Link          string
		ExpiresInDays int
	}{Name: name, Link: link, ExpiresInDays: days})
	if err != nil {
		return Message{}, fmt.Errorf("mail: render executor invitation: %w", err)
	}

	return Message{
		To:      []string{to},
		Subject: executorInvitationSubject,
		Body:    body.String(),
	}, nil
}
