package session

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	closedNotice        = "Thank you for calling %s. We're closed right now, but I can take a message."
	repromptIntent      = "Sorry, I didn't catch that. Who would you like to speak to?"
	intentNotResolved   = "I'm sorry, I couldn't work out who you'd like to reach."
	directoryDown       = "I'm sorry, I can't look up our staff right now."
	noMatch             = "I'm sorry, I couldn't find anyone by that name."
	checkingAvailable   = "One moment please, I'll check if %s is available."
	notAvailable        = "I'm sorry, %s isn't available right now."
	employeeLeft        = "I'm sorry, %s is no longer on the line."
	transferTrouble     = "I'm sorry, I wasn't able to connect you."
	relayEmployeeText   = "%s asked me to pass on: %s"
	handoff             = "%s, you're now connected with %s. Have a good conversation."
	askForMessage       = "Please leave your message after the tone, and I'll make sure %s gets it."
	askForMessageNoName = "Please leave your message after the tone, and I'll make sure it reaches the right person."
	repromptMessage     = "I didn't hear anything. Please tell me your message."
	messageRecorded     = "Thank you, I've recorded your message."
	goodbye             = "Thank you for calling %s. Goodbye."
	noMessageLeft       = "Caller left no message and asked for a call back."
	defaultCallerName   = "Caller"
)

func greeting(greeting, callerName string) string {
	if callerName == "" {
		return greeting
	}

	r, size := utf8.DecodeRuneInString(greeting)

	return fmt.Sprintf("Hello %s, %s", callerName, string(unicode.ToLower(r))+greeting[size:])
}

func messagePrompt(prefix, targetName string) string {
	prompt := askForMessageNoName
	if targetName != "" {
		prompt = fmt.Sprintf(askForMessage, targetName)
	}

	return strings.TrimSpace(prefix + " " + prompt)
}
