package session

import (
	"context"
	"errors"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

const mergeFailedOutcome = "merge_failed"

// transfer merges the caller into the consultation room. The caller is moved
// while both agents are still present, and the consultation agent leaves only
// once the employee is confirmed in the room, so the caller is never alone.
func (orchestrator *Orchestrator) transfer(ctx context.Context, sess *CallSession) error {
	handoffRoom := sess.handoff
	logger := orchestrator.logger(sess)

	err := retry.Do(
		func() error {
			return orchestrator.merge(ctx, sess)
		},
		retry.Attempts(orchestrator.Options.MergeRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(orchestrator.Options.MergeRetryBackoff),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, telephony.ErrParticipantGone)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			logger.Warn("[transfer] retrying merge",
				zap.Uint("attempt", attempt+1),
				zap.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return orchestrator.mergeFailed(ctx, sess, err)
	}

	callerName := sess.CallerName
	if callerName == "" {
		callerName = defaultCallerName
	}

	announcement := fmt.Sprintf(handoff, callerName, sess.targetName())
	sess.record(orchestrator.Options.Now(), SpeakerReceptionist, announcement)

	err = orchestrator.Speech.Say(ctx, handoffRoom.Room, announcement)
	if err != nil {
		logger.Warn("[transfer] failed to announce handoff", zap.String("error", err.Error()))
	}

	present, err := orchestrator.Rooms.HasParticipant(ctx, handoffRoom.Room, handoffRoom.Employee)
	if err != nil || !present {
		if err != nil {
			logger.Warn("[transfer] failed to confirm employee", zap.String("error", err.Error()))
		}

		return orchestrator.recoverCaller(ctx, sess)
	}

	err = orchestrator.Rooms.RemoveParticipant(ctx, handoffRoom.Room, handoffRoom.Agent)
	if err != nil {
		logger.Warn("[transfer] failed to leave merged room", zap.String("error", err.Error()))
	}

	handoffRoom.Detach()
	sess.handoff = nil

	err = sess.setOutcome(OutcomeTransferred)
	if err != nil {
		return err
	}

	logger.Info("[transfer] caller connected",
		zap.String("room", handoffRoom.Room.Name),
		zap.String("employee_id", sess.Target.ID),
	)

	return sess.transition(PhaseClosing)
}

// recoverCaller handles an employee who dropped during the merge. The caller
// goes back to their own room; if that fails the consultation room, where the
// consultation agent still is, becomes the caller's room.
func (orchestrator *Orchestrator) recoverCaller(ctx context.Context, sess *CallSession) error {
	handoffRoom := sess.handoff
	sess.handoff = nil

	sess.ConsultationOutcome = "employee_left"
	sess.addNote("employee left during transfer")
	sess.messagePrompt = fmt.Sprintf(employeeLeft, sess.targetName())

	err := orchestrator.Rooms.MoveParticipant(ctx, sess.Caller, handoffRoom.Room, sess.Room)
	if err == nil {
		handoffRoom.Release(ctx)
		return sess.transition(PhaseTakingMessage)
	}

	if ctx.Err() != nil || errors.Is(err, telephony.ErrParticipantGone) {
		handoffRoom.Release(ctx)
		return err
	}

	orchestrator.logger(sess).Warn("[recoverCaller] continuing in consultation room", zap.String("error", err.Error()))

	handoffRoom.Detach()
	sess.Room = handoffRoom.Room
	sess.Agent = handoffRoom.Agent
	sess.ownedRooms = append(sess.ownedRooms, handoffRoom.Room)

	return sess.transition(PhaseTakingMessage)
}

// merge moves the caller into the consultation room. A move whose reply was
// lost may still have been applied, so an error is checked against where the
// caller actually is.
func (orchestrator *Orchestrator) merge(ctx context.Context, sess *CallSession) error {
	moveErr := orchestrator.Rooms.MoveParticipant(ctx, sess.Caller, sess.Room, sess.handoff.Room)
	if moveErr == nil {
		return nil
	}

	merged, err := orchestrator.Rooms.HasParticipant(ctx, sess.handoff.Room, sess.Caller)
	if err == nil && merged {
		orchestrator.logger(sess).Warn("[merge] move reported an error but the caller was merged",
			zap.String("error", moveErr.Error()),
		)

		return nil
	}

	return moveErr
}

// mergeFailed settles a merge that never went through. The consultation room
// is released only once the caller is known to be back home or gone.
func (orchestrator *Orchestrator) mergeFailed(ctx context.Context, sess *CallSession, mergeErr error) error {
	handoffRoom := sess.handoff
	logger := orchestrator.logger(sess)

	if ctx.Err() != nil {
		handoffRoom.Release(ctx)
		sess.handoff = nil

		return mergeErr
	}

	atHome, err := orchestrator.Rooms.HasParticipant(ctx, sess.Room, sess.Caller)

	switch {
	case err == nil && !atHome && errors.Is(mergeErr, telephony.ErrParticipantGone):
		handoffRoom.Release(ctx)
		sess.handoff = nil

		return mergeErr
	case err == nil && atHome:
		handoffRoom.Release(ctx)
		sess.handoff = nil
	default:
		// caller's whereabouts are unknown; the employee stays on until close
		if err != nil {
			logger.Warn("[mergeFailed] failed to locate caller", zap.String("error", err.Error()))
		}
	}

	logger.Error("[mergeFailed] merge failed", zap.String("error", mergeErr.Error()))
	sess.ConsultationOutcome = mergeFailedOutcome
	sess.addNote("merge failed: %v", mergeErr)
	sess.messagePrompt = transferTrouble

	return sess.transition(PhaseTakingMessage)
}
