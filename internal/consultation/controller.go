// Package consultation privately dials an employee on behalf of a waiting
// caller, briefs them and collects an accept, reject or message decision
// within a deadline.
package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	unknownCaller = "an unknown caller"
	unknownPhone  = "an unknown number"
	unknownReason = "no reason given"
)

const (
	briefingTemplate = "Hello, this is the receptionist. I have %s on the line, calling from %s. " +
		"They are calling about: %s. Say accept to take the call, reject to decline, " +
		"or message to have me take a message. You can also press 1, 2 or 3."
	repromptDecision = "Sorry, I didn't get that. Please say accept, reject or message."
	askEmployeeText  = "What would you like me to tell the caller?"
	connectingText   = "Thank you, connecting the caller now."
	declinedText     = "Understood, I'll let them know you're unavailable."
	messageNotedText = "Understood, I'll take a message for you."
	expiredText      = "I didn't receive a decision, so I'll take a message instead. Goodbye."
)

type Request struct {
	SessionID     string
	EmployeeID    string
	EmployeeName  string
	EmployeePhone string
	CallerName    string
	CallerPhone   string
	Reason        string
}

type Options struct {
	Timeout        time.Duration
	CleanupTimeout time.Duration
	// ListenForSpokenDecision lets the employee answer by voice or keypad in
	// addition to the decision webhook.
	ListenForSpokenDecision bool
	Clock                   Clock
}

type Controller struct {
	Rooms    telephony.RoomProvider
	Speech   telephony.Speech
	Registry *Registry
	Options  Options
}

func NewController(rooms telephony.RoomProvider, speech telephony.Speech, registry *Registry, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}

	return &Controller{
		Rooms:    rooms,
		Speech:   speech,
		Registry: registry,
		Options:  opts,
	}
}

// Consult runs one consultation to completion. It never returns an error:
// every failure is folded into an outcome, and unless the outcome is accepted
// the consultation room is gone by the time Consult returns.
func (controller *Controller) Consult(ctx context.Context, req Request) (result Result) {
	id := uuid.NewString()
	start := time.Now()
	logger := logging.Logger.With(
		zap.String("session_id", req.SessionID),
		zap.String("consultation_id", id),
	)

	defer func() {
		prometheus.ConsultationDuration.WithLabelValues(result.Kind.String()).Observe(time.Since(start).Seconds())
		logger.Info("[Consult] consultation finished",
			zap.String("outcome", result.Kind.String()),
			zap.String("reason", result.Reason),
		)
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Consult] recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			result = Result{ConsultationID: id, EmployeeID: req.EmployeeID, Kind: OutcomeDialFailed, Reason: "internal_error"}
		}
	}()

	now := controller.Options.Clock.Now()

	room, err := controller.Rooms.CreateRoom(ctx, fmt.Sprintf("consultation_%d_%s", now.Unix(), id[:8]))
	if err != nil {
		logger.Error("[Consult] failed to create consultation room", zap.String("error", err.Error()))
		return controller.failed(ctx, id, req, "room_unavailable")
	}

	l := newLease(controller.Rooms, room, controller.Options.CleanupTimeout)
	handedOff := false

	defer func() {
		if !handedOff {
			l.release(ctx)
		}
	}()

	agent, err := controller.Rooms.AddAgent(ctx, room)
	if err != nil {
		logger.Error("[Consult] failed to add agent", zap.String("error", err.Error()))
		return controller.failed(ctx, id, req, "agent_unavailable")
	}

	employee, err := controller.Rooms.DialParticipant(ctx, room, req.EmployeePhone)
	if err != nil {
		reason := "unreachable"

		var dialErr *telephony.DialError
		if errors.As(err, &dialErr) {
			reason = dialErr.Reason()
		}

		logger.Warn("[Consult] failed to dial employee",
			zap.String("reason", reason),
			zap.String("error", err.Error()),
		)

		return controller.failed(ctx, id, req, reason)
	}

	l.employee = &employee

	session := newSession(id, req.EmployeeID, room, now.Add(controller.Options.Timeout))
	timer := controller.Options.Clock.AfterFunc(controller.Options.Timeout, func() {
		session.expire()
	})
	defer timer.Stop()

	controller.Registry.add(session)
	defer controller.Registry.remove(id)

	listenCtx, stopListening := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(listenCtx)

	if controller.Options.ListenForSpokenDecision {
		group.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("[Consult] recovered from panic in decision listener", zap.Any("panic", r))
				}
			}()

			controller.listenForDecision(groupCtx, session, employee)

			return nil
		})
	}

	defer func() {
		stopListening()
		_ = group.Wait()
	}()

	err = controller.Speech.Say(ctx, room, briefing(req))
	if err != nil {
		if errors.Is(err, telephony.ErrParticipantGone) {
			session.settle(DecisionReject, "")
		} else if ctx.Err() == nil {
			logger.Warn("[Consult] failed to brief employee", zap.String("error", err.Error()))
		}
	}

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.settle(DecisionTimeout, "")
	}

	if ctx.Err() != nil {
		return Result{ConsultationID: id, EmployeeID: req.EmployeeID, Kind: OutcomeTimedOut, Reason: "canceled"}
	}

	decision, message := session.Result()
	result = Result{ConsultationID: id, EmployeeID: req.EmployeeID}

	switch decision {
	case DecisionAccept:
		controller.tellEmployee(ctx, room, connectingText)

		handedOff = true
		result.Kind = OutcomeAccepted
		result.Handoff = &Handoff{Room: room, Employee: employee, Agent: agent, lease: l}
	case DecisionReject:
		controller.tellEmployee(ctx, room, declinedText)

		result.Kind = OutcomeRejected
	case DecisionMessage:
		controller.tellEmployee(ctx, room, messageNotedText)

		result.Kind = OutcomeMessageRequested
		result.Message = message
	default:
		controller.tellEmployee(ctx, room, expiredText)

		result.Kind = OutcomeTimedOut
		result.Reason = "no_decision"
	}

	return result
}

func (controller *Controller) failed(ctx context.Context, id string, req Request, reason string) Result {
	if ctx.Err() != nil {
		return Result{ConsultationID: id, EmployeeID: req.EmployeeID, Kind: OutcomeTimedOut, Reason: "canceled"}
	}

	return Result{ConsultationID: id, EmployeeID: req.EmployeeID, Kind: OutcomeDialFailed, Reason: reason}
}

func (controller *Controller) listenForDecision(ctx context.Context, session *Session, employee telephony.Participant) {
	for {
		utterance, err := controller.Speech.Listen(ctx, session.Room, employee)
		if err != nil {
			if errors.Is(err, telephony.ErrParticipantGone) {
				session.settle(DecisionReject, "")
			} else if ctx.Err() == nil {
				logging.Logger.Warn("[listenForDecision] stopped listening to employee",
					zap.String("consultation_id", session.ID),
					zap.String("error", err.Error()),
				)
			}

			return
		}

		if utterance.Text == "" && utterance.Digits == "" {
			continue
		}

		decision, message, ok := ParseSpokenDecision(utterance)
		if !ok {
			controller.tellEmployee(ctx, session.Room, repromptDecision)
			continue
		}

		if decision == DecisionMessage && message == "" {
			message = controller.askForMessage(ctx, session, employee)
		}

		err = session.Decide(decision, message)
		if err != nil {
			logging.Logger.Debug("[listenForDecision] decision arrived after settlement",
				zap.String("consultation_id", session.ID),
				zap.String("decision", decision.String()),
			)
		}

		return
	}
}

func (controller *Controller) askForMessage(ctx context.Context, session *Session, employee telephony.Participant) string {
	controller.tellEmployee(ctx, session.Room, askEmployeeText)

	utterance, err := controller.Speech.Listen(ctx, session.Room, employee)
	if err != nil {
		return ""
	}

	return utterance.Text
}

func (controller *Controller) tellEmployee(ctx context.Context, room telephony.Room, text string) {
	err := controller.Speech.Say(ctx, room, text)
	if err != nil && ctx.Err() == nil {
		logging.Logger.Warn("[tellEmployee] failed to speak to employee",
			zap.String("room", room.Name),
			zap.String("error", err.Error()),
		)
	}
}

func briefing(req Request) string {
	return fmt.Sprintf(briefingTemplate,
		orDefault(req.CallerName, unknownCaller),
		orDefault(req.CallerPhone, unknownPhone),
		orDefault(req.Reason, unknownReason),
	)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
