package consultation

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
)

var (
	ErrAlreadyDecided       = errors.New("consultation already decided")
	ErrInvalidDecision      = errors.New("decision must be accept, reject or message")
	ErrConsultationNotFound = errors.New("consultation not found")
)

type Decision int

const (
	DecisionPending Decision = iota
	DecisionAccept
	DecisionReject
	DecisionMessage
	DecisionTimeout
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	case DecisionMessage:
		return "message"
	case DecisionTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParseDecisionName accepts the wire names used by the decision webhook.
func ParseDecisionName(name string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "accept":
		return DecisionAccept, nil
	case "reject":
		return DecisionReject, nil
	case "message":
		return DecisionMessage, nil
	default:
		return DecisionPending, ErrInvalidDecision
	}
}

// Session is one outbound attempt to reach an employee. Its decision moves out
// of pending exactly once, either by the employee or by the deadline, and
// whichever comes first closes Done.
type Session struct {
	ID         string
	EmployeeID string
	Room       telephony.Room
	Deadline   time.Time

	mu       sync.Mutex
	decision Decision
	message  string
	done     chan struct{}
}

func newSession(id, employeeID string, room telephony.Room, deadline time.Time) *Session {
	return &Session{
		ID:         id,
		EmployeeID: employeeID,
		Room:       room,
		Deadline:   deadline,
		decision:   DecisionPending,
		done:       make(chan struct{}),
	}
}

// Decide records the employee's choice. Only the first call has an effect.
func (session *Session) Decide(decision Decision, message string) error {
	switch decision {
	case DecisionAccept, DecisionReject, DecisionMessage:
	default:
		return ErrInvalidDecision
	}

	if decision != DecisionMessage {
		message = ""
	}

	if !session.settle(decision, strings.TrimSpace(message)) {
		return ErrAlreadyDecided
	}

	return nil
}

func (session *Session) expire() bool {
	return session.settle(DecisionTimeout, "")
}

func (session *Session) settle(decision Decision, message string) bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.decision != DecisionPending {
		return false
	}

	session.decision = decision
	session.message = message
	close(session.done)

	return true
}

func (session *Session) Done() <-chan struct{} {
	return session.done
}

func (session *Session) Result() (Decision, string) {
	session.mu.Lock()
	defer session.mu.Unlock()

	return session.decision, session.message
}

var (
	messageWords = []string{"message", "meddelande"}

	acceptPhrases = [][]string{
		{"accept"}, {"acceptera"}, {"yes"}, {"yeah"}, {"ja"}, {"sure"}, {"okay"}, {"ok"},
		{"absolutely"}, {"connect"}, {"go", "ahead"}, {"put", "them", "through"},
		{"put", "him", "through"}, {"put", "her", "through"}, {"take", "it"},
		{"no", "problem"}, {"not", "a", "problem"}, {"of", "course"},
	}
	rejectPhrases = [][]string{
		{"reject"}, {"decline"}, {"busy"}, {"upptagen"}, {"can't"}, {"cannot"},
		{"not", "now"}, {"not", "available"}, {"unavailable"}, {"nej"},
	}

	// negators look back this many words from the start of a phrase
	negators      = []string{"not", "don't", "can't", "cannot", "won't", "never", "inte"}
	negationReach = 2
)

type word struct {
	text string
	end  int
}

// ParseSpokenDecision interprets an employee's reply to the briefing. Keys 1, 2
// and 3 map to accept, reject and message. For a spoken message request any
// text after the keyword is returned as the message body. An accept phrase
// outranks a refusal in the same reply, and a negated accept phrase counts as
// a refusal.
func ParseSpokenDecision(utterance telephony.Utterance) (Decision, string, bool) {
	switch strings.TrimSpace(utterance.Digits) {
	case "1":
		return DecisionAccept, "", true
	case "2":
		return DecisionReject, "", true
	case "3":
		return DecisionMessage, "", true
	}

	text := strings.TrimSpace(utterance.Text)
	words := splitWords(text)

	for _, w := range words {
		if slices.Contains(messageWords, w.text) {
			body := strings.TrimLeft(text[w.end:], " :,.-")
			return DecisionMessage, strings.TrimSpace(body), true
		}
	}

	accepted, refused := false, false

	for idx := range words {
		for _, phrase := range acceptPhrases {
			if !matchesAt(words, idx, phrase) {
				continue
			}

			if negated(words, idx) {
				refused = true
			} else {
				accepted = true
			}
		}

		for _, phrase := range rejectPhrases {
			if matchesAt(words, idx, phrase) && !negated(words, idx) {
				refused = true
			}
		}
	}

	// a bare leading "no" is a refusal; "no problem" is caught above
	if len(words) > 0 && words[0].text == "no" && !matchesAt(words, 0, []string{"no", "problem"}) {
		refused = true
	}

	switch {
	case accepted:
		return DecisionAccept, "", true
	case refused:
		return DecisionReject, "", true
	default:
		return DecisionPending, "", false
	}
}

// splitWords lowercases each word but keeps its byte offset into text, so a
// message body can be cut from the original utterance.
func splitWords(text string) []word {
	var (
		words []word
		start = -1
	)

	for idx, r := range text {
		inWord := unicode.IsLetter(r) || r == '\'' || r == '’'

		switch {
		case inWord && start < 0:
			start = idx
		case !inWord && start >= 0:
			words = append(words, newWord(text[start:idx], idx))
			start = -1
		}
	}

	if start >= 0 {
		words = append(words, newWord(text[start:], len(text)))
	}

	return words
}

func newWord(raw string, end int) word {
	return word{text: strings.ToLower(strings.ReplaceAll(raw, "’", "'")), end: end}
}

func matchesAt(words []word, idx int, phrase []string) bool {
	if idx+len(phrase) > len(words) {
		return false
	}

	for offset, part := range phrase {
		if words[idx+offset].text != part {
			return false
		}
	}

	return true
}

func negated(words []word, idx int) bool {
	for back := 1; back <= negationReach && idx-back >= 0; back++ {
		if slices.Contains(negators, words[idx-back].text) {
			return true
		}
	}

	return false
}
