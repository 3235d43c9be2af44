package recommend

import (
	"fmt"
	"strings"
	"time"
)

const maxUserAgentLen = 100

// Message is a notification ready to hand to a Sink.
type Message struct {
	Subject string
	Body    string
	SMS     string
	Rec     Recommendation
}

// NewMessage formats rec for delivery.
func NewMessage(rec Recommendation, userAgent string, at time.Time) Message {
	label, emoji := "Music", "🎵"
	if rec.Type == TypeMovie {
		label, emoji = "Movie", "🎬"
	}
	subject := fmt.Sprintf("New %s %s Recommendation", emoji, label)

	if userAgent == "" {
		userAgent = "unknown"
	}

	var body strings.Builder
	body.WriteString("New Recommendation Received!\n\n")
	fmt.Fprintf(&body, "Type: %s\n", label)
	fmt.Fprintf(&body, "From: %s\n", rec.Name)
	fmt.Fprintf(&body, "Recommendation: %s\n", rec.Text)
	if rec.Message != "" {
		fmt.Fprintf(&body, "\nMessage: %s\n", rec.Message)
	}
	body.WriteString("\n---\n")
	fmt.Fprintf(&body, "Timestamp: %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&body, "User Agent: %s\n", truncate(userAgent, maxUserAgentLen))
	body.WriteString("Sent from your portfolio website")

	sms := fmt.Sprintf("%s\n\nFrom: %s\n%s", subject, rec.Name, rec.Text)
	if rec.Message != "" {
		sms += "\n\n" + rec.Message
	}

	return Message{
		Subject: subject,
		Body:    body.String(),
		SMS:     sms,
		Rec:     rec,
	}
}
