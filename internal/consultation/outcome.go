package consultation

import (
	"context"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"go.uber.org/zap"
)

type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota + 1
	OutcomeRejected
	OutcomeMessageRequested
	OutcomeTimedOut
	OutcomeDialFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMessageRequested:
		return "message_requested"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeDialFailed:
		return "dial_failed"
	default:
		return "unknown"
	}
}

type Result struct {
	ConsultationID string
	EmployeeID     string
	Kind           OutcomeKind
	// Message is the employee's text for OutcomeMessageRequested.
	Message string
	// Reason explains OutcomeDialFailed and OutcomeTimedOut.
	Reason string
	// Handoff is set only for OutcomeAccepted.
	Handoff *Handoff
}

// Handoff carries ownership of an accepted consultation room to the caller's
// session. Exactly one of Release or Detach takes effect.
type Handoff struct {
	Room     telephony.Room
	Employee telephony.Participant
	Agent    telephony.Participant

	lease *lease
}

// Release hangs up the employee and destroys the consultation room.
func (handoff *Handoff) Release(ctx context.Context) {
	handoff.lease.release(ctx)
}

// Detach leaves the room running; the call now owns it.
func (handoff *Handoff) Detach() {
	handoff.lease.detach()
}

type lease struct {
	rooms    telephony.RoomProvider
	room     telephony.Room
	employee *telephony.Participant
	timeout  time.Duration
	once     sync.Once
}

func newLease(rooms telephony.RoomProvider, room telephony.Room, timeout time.Duration) *lease {
	return &lease{rooms: rooms, room: room, timeout: timeout}
}

func (l *lease) release(ctx context.Context) {
	l.once.Do(func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		if l.employee != nil {
			err := l.rooms.RemoveParticipant(cleanupCtx, l.room, *l.employee)
			if err != nil {
				logging.Logger.Warn("[release] failed to hang up employee",
					zap.String("room", l.room.Name),
					zap.String("error", err.Error()),
				)
			}
		}

		err := l.rooms.DestroyRoom(cleanupCtx, l.room)
		if err != nil {
			logging.Logger.Error("[release] failed to destroy consultation room",
				zap.String("room", l.room.Name),
				zap.String("error", err.Error()),
			)
		}
	})
}

func (l *lease) detach() {
	l.once.Do(func() {})
}
