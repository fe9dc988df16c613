// Package telephony talks to the managed voice platform that owns rooms,
// participants and the speech pipeline.
package telephony

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrParticipantGone = errors.New("participant left the room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrServerError     = errors.New("telephony server error")
	ErrUnexpectedReply = errors.New("unexpected telephony response")
)

type Room struct {
	Name string `json:"name"`
}

type Participant struct {
	Identity string `json:"identity"`
}

// Utterance is one turn of recognised speech; Digits carries DTMF input when the
// speaker pressed keys instead of talking.
type Utterance struct {
	Text   string `json:"text"`
	Digits string `json:"digits"`
}

type RoomProvider interface {
	CreateRoom(ctx context.Context, name string) (Room, error)
	DestroyRoom(ctx context.Context, room Room) error
	AddAgent(ctx context.Context, room Room) (Participant, error)
	DialParticipant(ctx context.Context, room Room, phoneNumber string) (Participant, error)
	MoveParticipant(ctx context.Context, participant Participant, from, to Room) error
	RemoveParticipant(ctx context.Context, room Room, participant Participant) error
	HasParticipant(ctx context.Context, room Room, participant Participant) (bool, error)
}

type Speech interface {
	Say(ctx context.Context, room Room, text string) error
	Listen(ctx context.Context, room Room, from Participant) (Utterance, error)
}

const (
	sipBusyHere           = 486
	sipTemporarilyUnavail = 480
	sipRequestTimeout     = 408
	sipNotFound           = 404
	sipDecline            = 603
)

// DialError describes why an outbound leg could not be established.
type DialError struct {
	PhoneNumber string
	SIPCode     int
	SIPReason   string
	Cause       error
}

func (e *DialError) Error() string {
	if e.SIPCode != 0 {
		return fmt.Sprintf("dial %s failed: %d %s", e.PhoneNumber, e.SIPCode, e.SIPReason)
	}

	if e.Cause != nil {
		return fmt.Sprintf("dial %s failed: %v", e.PhoneNumber, e.Cause)
	}

	return "dial " + e.PhoneNumber + " failed"
}

func (e *DialError) Unwrap() error {
	return e.Cause
}

func (e *DialError) IsBusy() bool {
	return e.SIPCode == sipBusyHere || e.SIPCode == sipDecline
}

func (e *DialError) IsNoAnswer() bool {
	return e.SIPCode == sipTemporarilyUnavail || e.SIPCode == sipRequestTimeout
}

func (e *DialError) IsInvalidNumber() bool {
	return e.SIPCode == sipNotFound
}

// Reason is a short machine-friendly label for logs and call records.
func (e *DialError) Reason() string {
	switch {
	case e.IsBusy():
		return "busy"
	case e.IsNoAnswer():
		return "no_answer"
	case e.IsInvalidNumber():
		return "invalid_number"
	default:
		return "unreachable"
	}
}
