package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/consultation"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"github.com/google/uuid"
)

var (
	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrOutcomeAlreadySet = errors.New("session outcome already set")
	ErrSessionPanicked   = errors.New("session panicked")
)

type Outcome string

const (
	OutcomeTransferred  Outcome = calllog.StatusTransferred
	OutcomeMessageTaken Outcome = calllog.StatusMessageTaken
	OutcomeAbandoned    Outcome = calllog.StatusAbandoned
	OutcomeFailed       Outcome = calllog.StatusFailed
)

const (
	SpeakerReceptionist = "receptionist"
	SpeakerCaller       = "caller"
)

// InboundCall is a caller waiting in a room the platform created for them,
// with the receptionist agent already joined.
type InboundCall struct {
	SessionID   string
	Room        telephony.Room
	Caller      telephony.Participant
	Agent       telephony.Participant
	CallerPhone string
	CallerName  string
	JoinedAt    time.Time
}

type TranscriptLine struct {
	At      time.Time `json:"at"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
}

// CallSession is owned by the single goroutine handling the call.
type CallSession struct {
	ID          string
	CallerPhone string
	CallerName  string
	Room        telephony.Room
	Caller      telephony.Participant
	Agent       telephony.Participant
	StartedAt   time.Time

	Query               directory.Query
	Reason              string
	Target              *directory.Employee
	ConsultationOutcome string
	MessageID           string
	MessageText         string
	NeedsReconciliation bool
	Notes               []string
	Transcript          []TranscriptLine
	Record              *calllog.CallLog

	phase   Phase
	outcome Outcome

	handoff         *consultation.Handoff
	employeeMessage string
	messagePrompt   string
	ownedRooms      []telephony.Room
}

func newCallSession(call InboundCall, now time.Time) *CallSession {
	id := call.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	startedAt := call.JoinedAt
	if startedAt.IsZero() {
		startedAt = now
	}

	return &CallSession{
		ID:          id,
		CallerPhone: call.CallerPhone,
		CallerName:  call.CallerName,
		Room:        call.Room,
		Caller:      call.Caller,
		Agent:       call.Agent,
		StartedAt:   startedAt,
		phase:       PhaseGreeting,
		ownedRooms:  []telephony.Room{call.Room},
	}
}

func (s *CallSession) Phase() Phase {
	return s.phase
}

func (s *CallSession) Outcome() Outcome {
	return s.outcome
}

func (s *CallSession) transition(next Phase) error {
	if !s.phase.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.phase, next)
	}

	s.phase = next

	return nil
}

func (s *CallSession) setOutcome(outcome Outcome) error {
	if s.outcome != "" {
		return fmt.Errorf("%w: %s", ErrOutcomeAlreadySet, s.outcome)
	}

	s.outcome = outcome

	return nil
}

func (s *CallSession) addNote(format string, args ...any) {
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}

func (s *CallSession) record(at time.Time, speaker, text string) {
	s.Transcript = append(s.Transcript, TranscriptLine{At: at, Speaker: speaker, Text: text})
}

func (s *CallSession) targetName() string {
	if s.Target == nil {
		return ""
	}

	return s.Target.FullName()
}

func (s *CallSession) callLog(endedAt time.Time, recordingRef string) *calllog.CallLog {
	record := &calllog.CallLog{
		ID:                  uuid.NewString(),
		SessionID:           s.ID,
		CallerPhone:         s.CallerPhone,
		CallerName:          optional(s.CallerName),
		RoomName:            s.ownedRooms[0].Name,
		Status:              string(s.outcome),
		ConsultationOutcome: optional(s.ConsultationOutcome),
		MessageText:         optional(s.MessageText),
		RecordingRef:        optional(recordingRef),
		Notes:               optional(strings.Join(s.Notes, "; ")),
		NeedsReconciliation: s.NeedsReconciliation,
		StartedAt:           s.StartedAt,
		EndedAt:             &endedAt,
		DurationSeconds:     int(endedAt.Sub(s.StartedAt).Seconds()),
	}

	if s.Target != nil {
		record.EmployeeID = &s.Target.ID
	}

	return record
}

func optional(value string) *string {
	if value == "" {
		return nil
	}

	return &value
}
