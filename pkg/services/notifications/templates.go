package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// DigestExcerptLength is the maximum number of characters of content shown per digest entry
const DigestExcerptLength = 100

var notificationTemplate = template.Must(template.New("notification").Parse(`<h2>{{.Headline}}</h2>
<p>Hi there,</p>
<p>You have a new notification on OpenCircle.</p>
{{if .Content}}<div style="background-color: #f5f5f5; padding: 16px; border-radius: 8px; margin: 16px 0;">
  <p style="margin: 0; color: #333;">{{.Content}}</p>
</div>
{{end}}{{if .PostLink}}<p style="margin-top: 20px;">
  <a href="{{.PostLink}}" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">View Post</a>
</p>
{{end}}<p>Thanks,<br>The OpenCircle Team</p>
`))

var digestTemplate = template.Must(template.New("digest").Parse(`<h2>Your {{.Title}} Notification Digest</h2>
<p>Hi there,</p>
<p>Here's a summary of your notifications from the past {{.Period}}:</p>
<div style="background-color: #f9f9f9; padding: 16px; border-radius: 8px; margin: 16px 0;">
{{range .Entries}}  <div style="border-bottom: 1px solid #eee; padding: 12px 0;">
    <p style="margin: 0;"><strong>{{.SenderUsername}}</strong> {{.Action}}</p>
{{if .Excerpt}}    <p style="margin: 8px 0 0 0; color: #666; font-size: 14px;">{{.Excerpt}}</p>
{{end}}  </div>
{{else}}  <p>No new notifications.</p>
{{end}}</div>
<p style="margin-top: 20px;">
  <a href="{{.NotificationsLink}}" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">View All Notifications</a>
</p>
<p>Thanks,<br>The OpenCircle Team</p>
`))

// actionPhrase describes what the sender did
func actionPhrase(t models.NotificationType) string {
	switch t {
	case models.NotificationMention:
		return "mentioned you"
	case models.NotificationLike:
		return "liked your post"
	case models.NotificationReply:
		return "replied to your post"
	}
	return "sent you a notification"
}

// headline is the one-line summary used as subject and heading
func headline(t models.NotificationType, sender string) string {
	if !t.Valid() {
		return "New notification"
	}
	return sender + " " + actionPhrase(t)
}

// RenderNotification returns the subject and HTML body of an immediate notification email
func RenderNotification(email NotificationEmail) (string, string, error) {
	title := headline(email.Type, email.SenderUsername)

	var body bytes.Buffer
	err := notificationTemplate.Execute(&body, struct {
		Headline string
		Content  string
		PostLink string
	}{title, email.Content, email.PostLink})
	if err != nil {
		return "", "", fmt.Errorf("failed to render notification email: %w", err)
	}
	return "OpenCircle: " + title, body.String(), nil
}

// RenderDigest returns the subject and HTML body of a digest email
func RenderDigest(email DigestEmail) (string, string, error) {
	name, title, period := "daily", "Daily", "day"
	if email.Frequency == models.FrequencyWeekly {
		name, title, period = "weekly", "Weekly", "week"
	}

	type entryView struct {
		SenderUsername string
		Action         string
		Excerpt        string
	}
	entries := make([]entryView, 0, len(email.Entries))
	for _, e := range email.Entries {
		entries = append(entries, entryView{
			SenderUsername: e.SenderUsername,
			Action:         actionPhrase(e.Type),
			Excerpt:        Excerpt(e.Content, DigestExcerptLength),
		})
	}

	var body bytes.Buffer
	err := digestTemplate.Execute(&body, struct {
		Title             string
		Period            string
		Entries           []entryView
		NotificationsLink string
	}{
		Title:             title,
		Period:            period,
		Entries:           entries,
		NotificationsLink: email.NotificationsLink,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render digest email: %w", err)
	}
	return fmt.Sprintf("OpenCircle: Your %s notification digest", name), body.String(), nil
}

// Excerpt shortens content to at most limit characters, marking truncation with "..."
func Excerpt(content string, limit int) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
