package consultation

import (
	"context"
	"strings"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony/telephonytest"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout   = 60 * time.Second
	employeePhone = "+46701234567"
)

type harness struct {
	rooms      *telephonytest.Rooms
	speech     *telephonytest.Speech
	registry   *Registry
	clock      *fakeClock
	controller *Controller
}

func newHarness(listen bool) *harness {
	h := &harness{
		rooms:    telephonytest.NewRooms(),
		speech:   telephonytest.NewSpeech(),
		registry: NewRegistry(),
		clock:    newFakeClock(),
	}

	h.controller = NewController(h.rooms, h.speech, h.registry, Options{
		Timeout:                 testTimeout,
		CleanupTimeout:          time.Second,
		ListenForSpokenDecision: listen,
		Clock:                   h.clock,
	})

	return h
}

func testRequest() Request {
	return Request{
		SessionID:     "s-1",
		EmployeeID:    "e-1",
		EmployeeName:  "Jane Doe",
		EmployeePhone: employeePhone,
		CallerName:    "Anna Berg",
		CallerPhone:   "+46811122233",
		Reason:        "the quarterly invoice",
	}
}

func (h *harness) consultAsync(ctx context.Context) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		results <- h.controller.Consult(ctx, testRequest())
	}()

	return results
}

func (h *harness) waitForSession(t *testing.T) *Session {
	t.Helper()

	var session *Session

	require.Eventually(t, func() bool {
		h.registry.mu.RLock()
		defer h.registry.mu.RUnlock()

		for _, s := range h.registry.sessions {
			session = s
			return true
		}

		return false
	}, 2*time.Second, time.Millisecond)

	return session
}

func awaitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()

	select {
	case result := <-results:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("consultation did not finish")
		return Result{}
	}
}

func TestConsultAcceptedHandsOffRoom(t *testing.T) {
	h := newHarness(false)
	results := h.consultAsync(context.Background())

	session := h.waitForSession(t)
	require.NoError(t, h.registry.Decide(session.ID, DecisionAccept, ""))

	result := awaitResult(t, results)
	require.Equal(t, OutcomeAccepted, result.Kind)
	require.Equal(t, session.ID, result.ConsultationID)
	require.NotNil(t, result.Handoff)
	require.Equal(t, session.Room, result.Handoff.Room)
	require.Equal(t, telephonytest.EmployeeIdentity(employeePhone), result.Handoff.Employee.Identity)
	require.Zero(t, h.rooms.Destroyed(result.Handoff.Room.Name))
	require.Zero(t, h.registry.Len())

	briefing := h.speech.SaidIn(session.Room.Name)[0]
	require.Contains(t, briefing, "Anna Berg")
	require.Contains(t, briefing, "+46811122233")
	require.Contains(t, briefing, "the quarterly invoice")
	require.True(t, strings.HasPrefix(result.Handoff.Room.Name, "consultation_"))

	result.Handoff.Release(context.Background())
	result.Handoff.Release(context.Background())
	require.Equal(t, 1, h.rooms.Destroyed(result.Handoff.Room.Name))
}

func TestHandoffDetachKeepsRoom(t *testing.T) {
	h := newHarness(false)
	results := h.consultAsync(context.Background())

	session := h.waitForSession(t)
	require.NoError(t, h.registry.Decide(session.ID, DecisionAccept, ""))

	result := awaitResult(t, results)
	result.Handoff.Detach()
	result.Handoff.Release(context.Background())

	require.Zero(t, h.rooms.Destroyed(result.Handoff.Room.Name))
}

func TestConsultDecisionJustBeforeDeadline(t *testing.T) {
	h := newHarness(false)
	results := h.consultAsync(context.Background())

	session := h.waitForSession(t)
	h.clock.Advance(testTimeout - time.Millisecond)
	require.NoError(t, h.registry.Decide(session.ID, DecisionAccept, ""))

	result := awaitResult(t, results)
	require.Equal(t, OutcomeAccepted, result.Kind)
}

func TestConsultDecisionJustAfterDeadline(t *testing.T) {
	h := newHarness(false)
	results := h.consultAsync(context.Background())

	session := h.waitForSession(t)
	h.clock.Advance(testTimeout)
	require.ErrorIs(t, session.Decide(DecisionAccept, ""), ErrAlreadyDecided)

	result := awaitResult(t, results)
	require.Equal(t, OutcomeTimedOut, result.Kind)
	require.Equal(t, "no_decision", result.Reason)
	require.Nil(t, result.Handoff)
	require.Equal(t, 1, h.rooms.Destroyed(session.Room.Name))
	require.ErrorIs(t, h.registry.Decide(session.ID, DecisionAccept, ""), ErrConsultationNotFound)
}

func TestConsultRejectedReleasesRoomOnce(t *testing.T) {
	h := newHarness(false)
	results := h.consultAsync(context.Background())

	session := h.waitForSession(t)
	require.NoError(t, h.registry.Decide(session.ID, DecisionReject, ""))

	result := awaitResult(t, results)
	require.Equal(t, OutcomeRejected, result.Kind)
	require.Equal(t, 1, h.rooms.Destroyed(session.Room.Name))
	require.Contains(t, h.rooms.Calls(), "remove:"+session.Room.Name+":"+telephonytest.EmployeeIdentity(employeePhone))
}

func TestConsultSpokenMessageRequest(t *testing.T) {
	h := newHarness(true)
	h.speech.Script(telephonytest.EmployeeIdentity(employeePhone),
		telephonytest.Silence(),
		telephonytest.Says("message: I'll call back after lunch"),
	)

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeMessageRequested, result.Kind)
	require.Equal(t, "I'll call back after lunch", result.Message)
}

func TestConsultSpokenMessageAsksForText(t *testing.T) {
	h := newHarness(true)
	h.speech.Script(telephonytest.EmployeeIdentity(employeePhone),
		telephonytest.Presses("3"),
		telephonytest.Says("Tell them I'm out until Monday"),
	)

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeMessageRequested, result.Kind)
	require.Equal(t, "Tell them I'm out until Monday", result.Message)
}

func TestConsultRepromptsOnUnclearReply(t *testing.T) {
	h := newHarness(true)
	h.speech.Script(telephonytest.EmployeeIdentity(employeePhone),
		telephonytest.Says("hmm who is it"),
		telephonytest.Presses("1"),
	)

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeAccepted, result.Kind)
	require.Contains(t, h.speech.SaidIn(result.Handoff.Room.Name), repromptDecision)

	result.Handoff.Release(context.Background())
}

func TestConsultEmployeeHangsUp(t *testing.T) {
	h := newHarness(true)
	h.speech.Script(telephonytest.EmployeeIdentity(employeePhone), telephonytest.HangsUp())

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeRejected, result.Kind)
}

func TestConsultDialBusy(t *testing.T) {
	h := newHarness(false)
	h.rooms.DialErr = &telephony.DialError{PhoneNumber: employeePhone, SIPCode: 486, SIPReason: "Busy Here"}

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeDialFailed, result.Kind)
	require.Equal(t, "busy", result.Reason)
	require.Zero(t, h.registry.Len())
	require.Equal(t, 1, destroyedConsultationRooms(h.rooms))
}

func TestConsultRoomCreationFailure(t *testing.T) {
	h := newHarness(false)
	h.rooms.CreateRoomErr = telephony.ErrServerError

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeDialFailed, result.Kind)
	require.Equal(t, "room_unavailable", result.Reason)
	require.Zero(t, destroyedConsultationRooms(h.rooms))
}

func TestConsultPanicBecomesDialFailed(t *testing.T) {
	h := newHarness(false)
	h.rooms.DialPanic = "sip stack exploded"

	result := h.controller.Consult(context.Background(), testRequest())
	require.Equal(t, OutcomeDialFailed, result.Kind)
	require.Equal(t, "internal_error", result.Reason)
	require.Equal(t, 1, destroyedConsultationRooms(h.rooms))
}

func TestConsultCanceledByCaller(t *testing.T) {
	h := newHarness(false)
	ctx, cancel := context.WithCancel(context.Background())
	results := h.consultAsync(ctx)

	session := h.waitForSession(t)
	cancel()

	result := awaitResult(t, results)
	require.Equal(t, OutcomeTimedOut, result.Kind)
	require.Equal(t, "canceled", result.Reason)
	require.Equal(t, 1, h.rooms.Destroyed(session.Room.Name))
}

func destroyedConsultationRooms(rooms *telephonytest.Rooms) int {
	count := 0

	for _, call := range rooms.Calls() {
		if strings.HasPrefix(call, "destroy:consultation_") {
			count++
		}
	}

	return count
}
