package consultation

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"github.com/stretchr/testify/require"
)

func TestParseSpokenDecision(t *testing.T) {
	tests := []struct {
		name      string
		utterance telephony.Utterance
		decision  Decision
		message   string
		ok        bool
	}{
		{"accept word", telephony.Utterance{Text: "Yes, put them through"}, DecisionAccept, "", true},
		{"accept swedish", telephony.Utterance{Text: "ja"}, DecisionAccept, "", true},
		{"reject word", telephony.Utterance{Text: "No, I'm in a meeting"}, DecisionReject, "", true},
		{"cannot accept is a reject", telephony.Utterance{Text: "I can't accept right now"}, DecisionReject, "", true},
		{"message with body", telephony.Utterance{Text: "Message: I'll call back after lunch"}, DecisionMessage, "I'll call back after lunch", true},
		{"message without body", telephony.Utterance{Text: "take a message"}, DecisionMessage, "", true},
		{"digit one", telephony.Utterance{Digits: "1"}, DecisionAccept, "", true},
		{"digit two", telephony.Utterance{Digits: "2"}, DecisionReject, "", true},
		{"digit three", telephony.Utterance{Digits: "3"}, DecisionMessage, "", true},
		{"no problem is an accept", telephony.Utterance{Text: "Sure, no problem"}, DecisionAccept, "", true},
		{"negated busy is an accept", telephony.Utterance{Text: "Yes, I'm not busy, put them through"}, DecisionAccept, "", true},
		{"not a problem is an accept", telephony.Utterance{Text: "Okay, I'll take it, not a problem"}, DecisionAccept, "", true},
		{"leading no problem", telephony.Utterance{Text: "No problem, connect them"}, DecisionAccept, "", true},
		{"negated accept is a reject", telephony.Utterance{Text: "I don't accept calls today"}, DecisionReject, "", true},
		{"not available", telephony.Utterance{Text: "I am not available"}, DecisionReject, "", true},
		{"not now", telephony.Utterance{Text: "Not now"}, DecisionReject, "", true},
		{"swedish reject", telephony.Utterance{Text: "Nej tack"}, DecisionReject, "", true},
		{"only a negated refusal", telephony.Utterance{Text: "I'm not busy"}, DecisionPending, "", false},
		{"curly apostrophe", telephony.Utterance{Text: "Sorry, I can’t"}, DecisionReject, "", true},
		{"message after case-folded text", telephony.Utterance{Text: "ȺȺȺȺ message"}, DecisionMessage, "", true},
		{"message body keeps original bytes", telephony.Utterance{Text: "ȺȺȺȺ MESSAGE: Ring Åsa"}, DecisionMessage, "Ring Åsa", true},
		{"no match inside word", telephony.Utterance{Text: "I know the caller"}, DecisionPending, "", false},
		{"empty", telephony.Utterance{}, DecisionPending, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, message, ok := ParseSpokenDecision(tt.utterance)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.decision, decision)
			require.Equal(t, tt.message, message)
		})
	}
}

func TestParseDecisionName(t *testing.T) {
	decision, err := ParseDecisionName(" Accept ")
	require.NoError(t, err)
	require.Equal(t, DecisionAccept, decision)

	_, err = ParseDecisionName("timeout")
	require.ErrorIs(t, err, ErrInvalidDecision)
}

func TestSessionDecidesOnce(t *testing.T) {
	session := newSession("c-1", "e-1", telephony.Room{Name: "r"}, time.Now())

	require.NoError(t, session.Decide(DecisionMessage, "  call me back  "))
	require.ErrorIs(t, session.Decide(DecisionAccept, ""), ErrAlreadyDecided)
	require.False(t, session.expire())

	decision, message := session.Result()
	require.Equal(t, DecisionMessage, decision)
	require.Equal(t, "call me back", message)

	select {
	case <-session.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSessionRejectsTimeoutAsDecision(t *testing.T) {
	session := newSession("c-1", "e-1", telephony.Room{Name: "r"}, time.Now())

	require.ErrorIs(t, session.Decide(DecisionTimeout, ""), ErrInvalidDecision)

	decision, _ := session.Result()
	require.Equal(t, DecisionPending, decision)
}

func TestSessionConcurrentDecisionsSettleOnce(t *testing.T) {
	session := newSession("c-1", "e-1", telephony.Room{Name: "r"}, time.Now())

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)

	for i := range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if i%2 == 0 {
				session.expire()
				return
			}

			if session.Decide(DecisionAccept, "") == nil {
				accepted.Add(1)
			}
		}()
	}

	wg.Wait()

	decision, _ := session.Result()
	if decision == DecisionAccept {
		require.Equal(t, int32(1), accepted.Load())
	} else {
		require.Equal(t, DecisionTimeout, decision)
		require.Equal(t, int32(0), accepted.Load())
	}
}

func TestRegistryDecide(t *testing.T) {
	registry := NewRegistry()
	require.ErrorIs(t, registry.Decide("missing", DecisionAccept, ""), ErrConsultationNotFound)

	session := newSession("c-1", "e-1", telephony.Room{Name: "r"}, time.Now())
	registry.add(session)
	require.Equal(t, 1, registry.Len())

	require.NoError(t, registry.Decide("c-1", DecisionReject, ""))
	require.ErrorIs(t, registry.Decide("c-1", DecisionAccept, ""), ErrAlreadyDecided)

	registry.remove("c-1")
	require.ErrorIs(t, registry.Decide("c-1", DecisionAccept, ""), ErrConsultationNotFound)
}
