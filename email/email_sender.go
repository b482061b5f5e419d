package email

import (
	"fmt"
	"html"

	"incident-dispatch/models"
	"incident-dispatch/observability"

	"github.com/apex/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Client sends a prepared message.
type Client interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailSender notifies operators about executed dispatches.
type EmailSender struct {
	fromName   string
	fromEmail  string
	recipients []string
	client     Client
}

// NewEmailSender creates a SendGrid-backed sender.
func NewEmailSender(apiKey, fromName, fromEmail string, recipients []string) *EmailSender {
	return NewEmailSenderWithClient(sendgrid.NewSendClient(apiKey), fromName, fromEmail, recipients)
}

func NewEmailSenderWithClient(client Client, fromName, fromEmail string, recipients []string) *EmailSender {
	return &EmailSender{fromName: fromName, fromEmail: fromEmail, recipients: recipients, client: client}
}

// NotifyExecuted emails every recipient. Failures for one recipient do not stop the others;
// the last error is returned.
func (e *EmailSender) NotifyExecuted(ev observability.Event) error {
	log.Infof("Sending dispatch notification to %d recipients", len(e.recipients))

	var lastErr error
	for _, recipient := range e.recipients {
		if err := e.sendOne(recipient, ev); err != nil {
			log.Warnf("Error sending email to %s: %v", recipient, err)
			lastErr = err
		}
	}
	return lastErr
}

func (e *EmailSender) sendOne(recipient string, ev observability.Event) error {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(e.fromName, e.fromEmail))
	message.Subject = Subject(ev)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(recipient, recipient))
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", Text(ev)))
	message.AddContent(mail.NewContent("text/html", HTML(ev)))

	response, err := e.client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", response.StatusCode, response.Body)
	}

	log.Infof("Email sent to %s! Status: %d", recipient, response.StatusCode)
	return nil
}

// Subject is the notification subject line.
func Subject(ev observability.Event) string {
	switch ev.Track {
	case models.TrackEmergency:
		return "Emergency call placed"
	case models.TrackMunicipal:
		return "311 report submitted"
	}
	return "Dispatch executed"
}

// Text is the plain-text body.
func Text(ev observability.Event) string {
	return fmt.Sprintf("%s\n\nRequest: %s\nTrack: %s\nReference: %s\nTime: %s\n",
		Subject(ev), ev.RequestID, ev.Track, ev.Detail, ev.At.UTC().Format("2006-01-02 15:04:05 MST"))
}

// HTML is the html body.
func HTML(ev observability.Event) string {
	return fmt.Sprintf(`<h2>%s</h2>
<table>
<tr><td>Request</td><td>%s</td></tr>
<tr><td>Track</td><td>%s</td></tr>
<tr><td>Reference</td><td>%s</td></tr>
<tr><td>Time</td><td>%s</td></tr>
</table>`,
		html.EscapeString(Subject(ev)),
		html.EscapeString(ev.RequestID),
		html.EscapeString(string(ev.Track)),
		html.EscapeString(ev.Detail),
		ev.At.UTC().Format("2006-01-02 15:04:05 MST"))
}
