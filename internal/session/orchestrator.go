// Package session drives one inbound call from greeting to close: it resolves
// who the caller wants, consults that employee, then either merges the caller
// into the employee's room or takes a message.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/consultation"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/events"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/intent"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Directory interface {
	Search(ctx context.Context, query directory.Query, at time.Time) ([]directory.Employee, error)
	IsAvailable(ctx context.Context, employeeID string, at time.Time) (bool, error)
}

type Consultant interface {
	Consult(ctx context.Context, req consultation.Request) consultation.Result
}

type CallLogStore interface {
	AppendCallLog(ctx context.Context, record *calllog.CallLog) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, msg *message.Message) (string, error)
}

// Reconciler keeps writes that failed so they can be replayed later.
type Reconciler interface {
	FlagCallLog(ctx context.Context, record *calllog.CallLog, cause error) error
	FlagMessage(ctx context.Context, msg *message.Message, cause error) error
}

type EventPublisher interface {
	PublishSessionStarted(ctx context.Context, event events.SessionStarted) error
	PublishSessionEnded(ctx context.Context, record *calllog.CallLog) error
	PublishMessageCreated(ctx context.Context, msg *message.Message) error
	PublishTransferRequested(ctx context.Context, event events.TransferRequested) error
}

// CompanyHours is satisfied by directory.CompanyHours.
type CompanyHours interface {
	IsOpen(at time.Time) bool
}

type TranscriptArchive interface {
	Upload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error)
}

type Dependencies struct {
	Rooms      telephony.RoomProvider
	Speech     telephony.Speech
	Intents    intent.Parser
	Directory  Directory
	Consultant Consultant
	CallLogs   CallLogStore
	Messages   MessageStore
	Reconciler Reconciler
	Events     EventPublisher
	// Archive is optional.
	Archive TranscriptArchive
	// Hours is optional; without it the company is always open.
	Hours CompanyHours
}

type Options struct {
	CompanyName        string
	Greeting           string
	IntentAttempts     int
	ListenTimeout      time.Duration
	CleanupTimeout     time.Duration
	MergeRetryAttempts uint
	MergeRetryBackoff  time.Duration
	Now                func() time.Time
}

type Orchestrator struct {
	Dependencies
	Options Options
}

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.IntentAttempts < 1 {
		opts.IntentAttempts = 1
	}

	if opts.MergeRetryAttempts < 1 {
		opts.MergeRetryAttempts = 1
	}

	return &Orchestrator{Dependencies: deps, Options: opts}
}

// Handle runs the call to Closed. It always releases the caller's room and
// always produces a call log record, even when the caller hangs up or a
// collaborator fails.
func (orchestrator *Orchestrator) Handle(ctx context.Context, call InboundCall) *CallSession {
	sess := newCallSession(call, orchestrator.Options.Now())

	orchestrator.logger(sess).Info("[Handle] session started",
		zap.String("room", sess.Room.Name),
		zap.String("caller_phone", sess.CallerPhone),
	)

	err := orchestrator.Events.PublishSessionStarted(ctx, events.SessionStarted{
		SessionID:   sess.ID,
		CallerPhone: sess.CallerPhone,
		CallerName:  sess.CallerName,
		RoomName:    sess.Room.Name,
		StartedAt:   sess.StartedAt,
	})
	if err != nil {
		orchestrator.logger(sess).Warn("[Handle] failed to publish session start", zap.String("error", err.Error()))
	}

	err = orchestrator.run(ctx, sess)
	orchestrator.settle(ctx, sess, err)
	orchestrator.close(ctx, sess)

	return sess
}

func (orchestrator *Orchestrator) run(ctx context.Context, sess *CallSession) (err error) {
	defer func() {
		if r := recover(); r != nil {
			orchestrator.logger(sess).Error("[run] recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrSessionPanicked, r)
		}
	}()

	for sess.phase != PhaseClosing {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch sess.phase {
		case PhaseGreeting:
			err = orchestrator.greet(ctx, sess)
		case PhaseResolvingIntent:
			err = orchestrator.resolveIntent(ctx, sess)
		case PhaseSearchingDirectory:
			err = orchestrator.searchDirectory(ctx, sess)
		case PhaseConsulting:
			err = orchestrator.consult(ctx, sess)
		case PhaseTransferring:
			err = orchestrator.transfer(ctx, sess)
		case PhaseTakingMessage:
			err = orchestrator.takeMessage(ctx, sess)
		default:
			err = fmt.Errorf("%w: cannot run %s", ErrIllegalTransition, sess.phase)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// settle classifies how the session ended and moves it to Closing.
func (orchestrator *Orchestrator) settle(ctx context.Context, sess *CallSession, runErr error) {
	logger := orchestrator.logger(sess)

	if runErr != nil {
		outcome := OutcomeFailed
		if ctx.Err() != nil || errors.Is(runErr, telephony.ErrParticipantGone) {
			outcome = OutcomeAbandoned
		}

		if outcome == OutcomeFailed {
			logger.Error("[settle] session failed", zap.String("error", runErr.Error()))
			sess.addNote("unexpected error: %v", runErr)
		} else {
			logger.Info("[settle] caller disconnected", zap.String("error", runErr.Error()))
		}

		err := sess.setOutcome(outcome)
		if err != nil {
			logger.Debug("[settle] keeping earlier outcome", zap.String("error", err.Error()))
		}
	}

	if sess.outcome == "" {
		_ = sess.setOutcome(OutcomeFailed)
	}

	if sess.phase != PhaseClosing {
		err := sess.transition(PhaseClosing)
		if err != nil {
			logger.Error("[settle] failed to enter closing", zap.String("error", err.Error()))
			sess.phase = PhaseClosing
		}
	}
}

func (orchestrator *Orchestrator) greet(ctx context.Context, sess *CallSession) error {
	if orchestrator.Hours != nil && !orchestrator.Hours.IsOpen(orchestrator.Options.Now()) {
		return orchestrator.greetClosed(ctx, sess)
	}

	err := orchestrator.say(ctx, sess, greeting(orchestrator.Options.Greeting, sess.CallerName))
	if err != nil {
		return err
	}

	return sess.transition(PhaseResolvingIntent)
}

// greetClosed skips the directory and goes straight to a message for whoever
// picks it up next.
func (orchestrator *Orchestrator) greetClosed(ctx context.Context, sess *CallSession) error {
	err := orchestrator.say(ctx, sess, fmt.Sprintf(closedNotice, orchestrator.Options.CompanyName))
	if err != nil {
		return err
	}

	sess.ConsultationOutcome = "company_closed"
	sess.addNote("called outside company hours")

	err = sess.transition(PhaseResolvingIntent)
	if err != nil {
		return err
	}

	return sess.transition(PhaseTakingMessage)
}

func (orchestrator *Orchestrator) resolveIntent(ctx context.Context, sess *CallSession) error {
	for attempt := 1; attempt <= orchestrator.Options.IntentAttempts; attempt++ {
		utterance, err := orchestrator.listen(ctx, sess)
		if err != nil {
			return err
		}

		if strings.TrimSpace(utterance.Text) != "" {
			parsed, err := orchestrator.Intents.Parse(ctx, utterance.Text)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				orchestrator.logger(sess).Warn("[resolveIntent] failed to parse intent", zap.String("error", err.Error()))
			}

			if parsed.CallerName != "" && sess.CallerName == "" {
				sess.CallerName = parsed.CallerName
			}

			if parsed.Reason != "" {
				sess.Reason = parsed.Reason
			}

			if parsed.HasTarget() {
				sess.Query = directory.Query{Name: parsed.Person, Department: parsed.Department}
				return sess.transition(PhaseSearchingDirectory)
			}

			if parsed.WantsMessage {
				sess.addNote("caller asked to leave a message")
				return sess.transition(PhaseTakingMessage)
			}
		}

		if attempt < orchestrator.Options.IntentAttempts {
			err = orchestrator.say(ctx, sess, repromptIntent)
			if err != nil {
				return err
			}
		}
	}

	sess.addNote("intent not resolved")
	sess.messagePrompt = intentNotResolved

	return sess.transition(PhaseTakingMessage)
}

func (orchestrator *Orchestrator) searchDirectory(ctx context.Context, sess *CallSession) error {
	now := orchestrator.Options.Now()
	logger := orchestrator.logger(sess)

	employees, err := orchestrator.Directory.Search(ctx, sess.Query, now)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !errors.Is(err, directory.ErrDirectoryUnavailable) {
			return err
		}

		logger.Warn("[searchDirectory] directory unavailable", zap.String("error", err.Error()))

		return orchestrator.directoryUnavailable(sess)
	}

	if len(employees) == 0 {
		sess.ConsultationOutcome = "no_match"
		sess.addNote("no directory match for %q", sess.Query.Name+sess.Query.Department)
		sess.messagePrompt = noMatch

		return sess.transition(PhaseTakingMessage)
	}

	checked := 0

	for idx := range employees {
		available, err := orchestrator.Directory.IsAvailable(ctx, employees[idx].ID, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logger.Warn("[searchDirectory] availability check failed",
				zap.String("employee_id", employees[idx].ID),
				zap.String("error", err.Error()),
			)

			continue
		}

		checked++

		if available {
			sess.Target = &employees[idx]
			return sess.transition(PhaseConsulting)
		}
	}

	// the message goes to the best match even though nobody can take the call
	sess.Target = &employees[0]

	if checked == 0 {
		return orchestrator.directoryUnavailable(sess)
	}

	sess.ConsultationOutcome = "unavailable"
	sess.addNote("no available employee")
	sess.messagePrompt = fmt.Sprintf(notAvailable, sess.targetName())

	return sess.transition(PhaseTakingMessage)
}

func (orchestrator *Orchestrator) directoryUnavailable(sess *CallSession) error {
	sess.ConsultationOutcome = "directory_unavailable"
	sess.addNote("directory unavailable")
	sess.messagePrompt = directoryDown

	return sess.transition(PhaseTakingMessage)
}

func (orchestrator *Orchestrator) consult(ctx context.Context, sess *CallSession) error {
	err := orchestrator.say(ctx, sess, fmt.Sprintf(checkingAvailable, sess.targetName()))
	if err != nil {
		return err
	}

	err = orchestrator.Events.PublishTransferRequested(ctx, events.TransferRequested{
		SessionID:   sess.ID,
		EmployeeID:  sess.Target.ID,
		CallerName:  sess.CallerName,
		CallerPhone: sess.CallerPhone,
		Reason:      sess.Reason,
	})
	if err != nil {
		orchestrator.logger(sess).Warn("[consult] failed to publish transfer request", zap.String("error", err.Error()))
	}

	result := orchestrator.Consultant.Consult(ctx, consultation.Request{
		SessionID:     sess.ID,
		EmployeeID:    sess.Target.ID,
		EmployeeName:  sess.targetName(),
		EmployeePhone: sess.Target.PhoneNumber,
		CallerName:    sess.CallerName,
		CallerPhone:   sess.CallerPhone,
		Reason:        sess.Reason,
	})

	sess.ConsultationOutcome = result.Kind.String()

	if ctx.Err() != nil {
		if result.Handoff != nil {
			result.Handoff.Release(ctx)
		}

		return ctx.Err()
	}

	switch result.Kind {
	case consultation.OutcomeAccepted:
		sess.handoff = result.Handoff
		return sess.transition(PhaseTransferring)
	case consultation.OutcomeMessageRequested:
		sess.employeeMessage = result.Message
	default:
		sess.addNote("consultation %s %s", result.Kind, result.Reason)
		sess.messagePrompt = fmt.Sprintf(notAvailable, sess.targetName())
	}

	return sess.transition(PhaseTakingMessage)
}

func (orchestrator *Orchestrator) takeMessage(ctx context.Context, sess *CallSession) error {
	if sess.employeeMessage != "" {
		err := orchestrator.say(ctx, sess, fmt.Sprintf(relayEmployeeText, sess.targetName(), sess.employeeMessage))
		if err != nil {
			return err
		}
	}

	err := orchestrator.say(ctx, sess, messagePrompt(sess.messagePrompt, sess.targetName()))
	if err != nil {
		return err
	}

	text, err := orchestrator.listenForMessage(ctx, sess)
	if err != nil {
		return err
	}

	msg := &message.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		FromPhone: sess.CallerPhone,
		Text:      text,
		Status:    message.StatusPending,
	}

	msg.CallerName = optional(sess.CallerName)
	if sess.Target != nil {
		msg.ToEmployeeID = &sess.Target.ID
	}

	if sess.employeeMessage != "" {
		sess.addNote("employee replied: %s", sess.employeeMessage)
	}

	orchestrator.saveMessage(ctx, sess, msg)

	sess.MessageText = text

	err = sess.setOutcome(OutcomeMessageTaken)
	if err != nil {
		return err
	}

	err = orchestrator.say(ctx, sess, messageRecorded)
	if err != nil {
		return err
	}

	return sess.transition(PhaseClosing)
}

func (orchestrator *Orchestrator) listenForMessage(ctx context.Context, sess *CallSession) (string, error) {
	for attempt := range 2 {
		if attempt > 0 {
			err := orchestrator.say(ctx, sess, repromptMessage)
			if err != nil {
				return "", err
			}
		}

		utterance, err := orchestrator.listen(ctx, sess)
		if err != nil {
			return "", err
		}

		if text := strings.TrimSpace(utterance.Text); text != "" {
			return text, nil
		}
	}

	sess.addNote("caller left no message")

	if sess.Reason != "" {
		return sess.Reason, nil
	}

	return noMessageLeft, nil
}

// saveMessage persists outside the call's context so a caller hanging up
// right after speaking does not lose the message.
func (orchestrator *Orchestrator) saveMessage(ctx context.Context, sess *CallSession, msg *message.Message) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orchestrator.Options.CleanupTimeout)
	defer cancel()

	logger := orchestrator.logger(sess)

	id, err := orchestrator.Messages.SaveMessage(saveCtx, msg)
	if err != nil {
		logger.Error("[saveMessage] failed to save message", zap.String("error", err.Error()))

		sess.NeedsReconciliation = true
		sess.addNote("message pending reconciliation")

		flagErr := orchestrator.Reconciler.FlagMessage(saveCtx, msg, err)
		if flagErr != nil {
			logger.Error("[saveMessage] failed to flag message for reconciliation", zap.String("error", flagErr.Error()))
		}

		return
	}

	sess.MessageID = id

	err = orchestrator.Events.PublishMessageCreated(saveCtx, msg)
	if err != nil {
		logger.Warn("[saveMessage] failed to publish message created", zap.String("error", err.Error()))
	}
}

// close runs on every exit path with a context the caller cannot cancel.
func (orchestrator *Orchestrator) close(ctx context.Context, sess *CallSession) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orchestrator.Options.CleanupTimeout)
	defer cancel()

	logger := orchestrator.logger(sess)

	if sess.outcome == OutcomeMessageTaken || sess.outcome == OutcomeFailed {
		err := orchestrator.say(cleanupCtx, sess, fmt.Sprintf(goodbye, orchestrator.Options.CompanyName))
		if err != nil {
			logger.Debug("[close] goodbye not delivered", zap.String("error", err.Error()))
		}
	}

	if sess.handoff != nil {
		sess.handoff.Release(cleanupCtx)
		sess.handoff = nil
	}

	endedAt := orchestrator.Options.Now()
	record := sess.callLog(endedAt, orchestrator.archiveTranscript(cleanupCtx, sess))

	err := orchestrator.CallLogs.AppendCallLog(cleanupCtx, record)
	if err != nil {
		logger.Error("[close] failed to append call log", zap.String("error", err.Error()))

		sess.NeedsReconciliation = true
		record.NeedsReconciliation = true

		flagErr := orchestrator.Reconciler.FlagCallLog(cleanupCtx, record, err)
		if flagErr != nil {
			logger.Error("[close] failed to flag call log for reconciliation", zap.String("error", flagErr.Error()))
		}
	}

	sess.Record = record

	for _, room := range sess.ownedRooms {
		err = orchestrator.Rooms.DestroyRoom(cleanupCtx, room)
		if err != nil {
			logger.Error("[close] failed to destroy room",
				zap.String("room", room.Name),
				zap.String("error", err.Error()),
			)
		}
	}

	err = orchestrator.Events.PublishSessionEnded(cleanupCtx, record)
	if err != nil {
		logger.Warn("[close] failed to publish session end", zap.String("error", err.Error()))
	}

	err = sess.transition(PhaseClosed)
	if err != nil {
		logger.Error("[close] failed to close session", zap.String("error", err.Error()))
	}

	prometheus.SessionDuration.WithLabelValues(string(sess.outcome)).Observe(endedAt.Sub(sess.StartedAt).Seconds())

	logger.Info("[close] session closed",
		zap.String("outcome", string(sess.outcome)),
		zap.String("consultation_outcome", sess.ConsultationOutcome),
		zap.Bool("needs_reconciliation", sess.NeedsReconciliation),
	)
}

func (orchestrator *Orchestrator) archiveTranscript(ctx context.Context, sess *CallSession) string {
	if orchestrator.Archive == nil || len(sess.Transcript) == 0 {
		return ""
	}

	data, err := json.Marshal(sess.Transcript)
	if err != nil {
		orchestrator.logger(sess).Error("[archiveTranscript] failed to encode transcript", zap.String("error", err.Error()))
		return ""
	}

	key := fmt.Sprintf("%s/%s.json", sess.StartedAt.UTC().Format("2006/01/02"), sess.ID)

	url, err := orchestrator.Archive.Upload(ctx, bytes.NewBuffer(data), key)
	if err != nil {
		orchestrator.logger(sess).Warn("[archiveTranscript] failed to archive transcript", zap.String("error", err.Error()))
		return ""
	}

	return url
}

// say speaks to the caller. Only a hang-up or cancellation is fatal; other
// speech failures are logged and the call carries on.
func (orchestrator *Orchestrator) say(ctx context.Context, sess *CallSession, text string) error {
	sess.record(orchestrator.Options.Now(), SpeakerReceptionist, text)

	err := orchestrator.Speech.Say(ctx, sess.Room, text)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if errors.Is(err, telephony.ErrParticipantGone) {
		return err
	}

	orchestrator.logger(sess).Warn("[say] failed to speak", zap.String("error", err.Error()))

	return nil
}

// listen waits at most ListenTimeout for the caller; silence is an empty
// utterance, not an error.
func (orchestrator *Orchestrator) listen(ctx context.Context, sess *CallSession) (telephony.Utterance, error) {
	listenCtx, cancel := context.WithTimeout(ctx, orchestrator.Options.ListenTimeout)
	defer cancel()

	utterance, err := orchestrator.Speech.Listen(listenCtx, sess.Room, sess.Caller)
	if err != nil {
		if ctx.Err() != nil {
			return telephony.Utterance{}, ctx.Err()
		}

		if errors.Is(err, telephony.ErrParticipantGone) {
			return telephony.Utterance{}, err
		}

		if !errors.Is(err, context.DeadlineExceeded) {
			orchestrator.logger(sess).Warn("[listen] failed to listen", zap.String("error", err.Error()))
		}

		return telephony.Utterance{}, nil
	}

	if utterance.Text != "" {
		sess.record(orchestrator.Options.Now(), SpeakerCaller, utterance.Text)
	}

	return utterance, nil
}

func (orchestrator *Orchestrator) logger(sess *CallSession) *zap.Logger {
	return logging.Logger.With(
		zap.String("session_id", sess.ID),
		zap.String("phase", sess.phase.String()),
	)
}
