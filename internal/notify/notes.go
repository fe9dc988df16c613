package notify

import (
	"fmt"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/events"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
)

const signature = "\n\nBest regards,\nYour Switchboard Assistant"

func messageNote(recipientName string, msg *message.Message) Note {
	from := msg.FromPhone
	if msg.CallerName != nil && *msg.CallerName != "" {
		from = fmt.Sprintf("%s (%s)", *msg.CallerName, msg.FromPhone)
	}

	var body strings.Builder

	fmt.Fprintf(&body, "Hi %s,\n\nYou have a new message from %s:\n\n\"%s\"\n\n", recipientName, from, msg.Text)
	body.WriteString("This message was taken by our switchboard assistant. Please respond when convenient.")
	body.WriteString(signature)

	return Note{
		Subject: "New message from " + from,
		Body:    body.String(),
	}
}

func transferNote(recipientName string, event events.TransferRequested) Note {
	callerName := orDefault(event.CallerName, "Unknown caller")

	var body strings.Builder

	fmt.Fprintf(&body, "Hi %s,\n\nYou have an incoming call transfer:\n\n", recipientName)
	fmt.Fprintf(&body, "Caller: %s\nPhone: %s\nReason: %s\n\n",
		callerName,
		orDefault(event.CallerPhone, "Unknown number"),
		orDefault(event.Reason, "No specific reason provided"),
	)
	body.WriteString("Please prepare to receive the call.")
	body.WriteString(signature)

	return Note{
		Subject: "Incoming call transfer from " + callerName,
		Body:    body.String(),
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
