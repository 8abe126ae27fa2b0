package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// InviteEmailData holds data for the invite email carrying the enrollment token.
type InviteEmailData struct {
	Email          string
	Token          string
	SiteID         string
	ExpiresInHours int
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendInvite(ctx context.Context, data *InviteEmailData) error
}
