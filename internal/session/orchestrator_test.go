package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/consultation"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/events"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/intent"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/message"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony/telephonytest"
	"github.com/stretchr/testify/require"
)

const (
	callerRoom     = "call_1"
	callerIdentity = "caller"
	callerPhone    = "+46811122233"
	companyName    = "Acme"
)

var (
	janeDoe = directory.Employee{
		ID: "e-jane", FirstName: "Jane", LastName: "Doe",
		PhoneNumber: "+46701000001", Status: directory.StatusAvailable,
	}
	johnSmith = directory.Employee{
		ID: "e-john", FirstName: "John", LastName: "Smith",
		PhoneNumber: "+46701000002", Status: directory.StatusAvailable,
	}
)

type fakeDirectory struct {
	employees       []directory.Employee
	available       map[string]bool
	err             error
	availabilityErr error
	panics          bool
}

func (f *fakeDirectory) Search(context.Context, directory.Query, time.Time) ([]directory.Employee, error) {
	if f.panics {
		panic("directory exploded")
	}

	return f.employees, f.err
}

func (f *fakeDirectory) IsAvailable(_ context.Context, employeeID string, _ time.Time) (bool, error) {
	if f.availabilityErr != nil {
		return false, f.availabilityErr
	}

	return f.available[employeeID], nil
}

type memoryCallLogs struct {
	err     error
	records []*calllog.CallLog
}

func (m *memoryCallLogs) AppendCallLog(_ context.Context, record *calllog.CallLog) error {
	if m.err != nil {
		return m.err
	}

	m.records = append(m.records, record)

	return nil
}

type memoryMessages struct {
	err   error
	saved []*message.Message
}

func (m *memoryMessages) SaveMessage(_ context.Context, msg *message.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}

	m.saved = append(m.saved, msg)

	return msg.ID, nil
}

type recordingReconciler struct {
	callLogs []*calllog.CallLog
	messages []*message.Message
}

func (r *recordingReconciler) FlagCallLog(_ context.Context, record *calllog.CallLog, _ error) error {
	r.callLogs = append(r.callLogs, record)
	return nil
}

func (r *recordingReconciler) FlagMessage(_ context.Context, msg *message.Message, _ error) error {
	r.messages = append(r.messages, msg)
	return nil
}

type recordingEvents struct {
	mu        sync.Mutex
	started   int
	ended     []*calllog.CallLog
	created   []*message.Message
	transfers []events.TransferRequested
}

func (r *recordingEvents) PublishSessionStarted(context.Context, events.SessionStarted) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.started++

	return nil
}

func (r *recordingEvents) PublishSessionEnded(_ context.Context, record *calllog.CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ended = append(r.ended, record)

	return nil
}

func (r *recordingEvents) PublishMessageCreated(_ context.Context, msg *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.created = append(r.created, msg)

	return nil
}

func (r *recordingEvents) PublishTransferRequested(_ context.Context, event events.TransferRequested) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transfers = append(r.transfers, event)

	return nil
}

type fixedHours bool

func (open fixedHours) IsOpen(time.Time) bool {
	return bool(open)
}

type testCall struct {
	rooms        *telephonytest.Rooms
	speech       *telephonytest.Speech
	directory    *fakeDirectory
	callLogs     *memoryCallLogs
	messages     *memoryMessages
	reconciler   *recordingReconciler
	events       *recordingEvents
	orchestrator *Orchestrator
}

func newTestCall(consultTimeout time.Duration) *testCall {
	c := &testCall{
		rooms:      telephonytest.NewRooms(),
		speech:     telephonytest.NewSpeech(),
		directory:  &fakeDirectory{available: map[string]bool{}},
		callLogs:   &memoryCallLogs{},
		messages:   &memoryMessages{},
		reconciler: &recordingReconciler{},
		events:     &recordingEvents{},
	}

	c.rooms.AddRoom(callerRoom, callerIdentity, telephonytest.AgentPrefix+callerRoom)

	controller := consultation.NewController(c.rooms, c.speech, consultation.NewRegistry(), consultation.Options{
		Timeout:                 consultTimeout,
		CleanupTimeout:          time.Second,
		ListenForSpokenDecision: true,
	})

	c.orchestrator = NewOrchestrator(Dependencies{
		Rooms:      c.rooms,
		Speech:     c.speech,
		Intents:    intent.KeywordParser{},
		Directory:  c.directory,
		Consultant: controller,
		CallLogs:   c.callLogs,
		Messages:   c.messages,
		Reconciler: c.reconciler,
		Events:     c.events,
	}, Options{
		CompanyName:        companyName,
		Greeting:           "Thank you for calling Acme. How may I direct your call?",
		IntentAttempts:     2,
		ListenTimeout:      100 * time.Millisecond,
		CleanupTimeout:     time.Second,
		MergeRetryAttempts: 3,
		MergeRetryBackoff:  time.Millisecond,
	})

	return c
}

func (c *testCall) withEmployee(employee directory.Employee, available bool) {
	c.directory.employees = append(c.directory.employees, employee)
	c.directory.available[employee.ID] = available
}

func (c *testCall) callerSays(turns ...telephonytest.Turn) {
	c.speech.Script(callerIdentity, turns...)
}

func (c *testCall) employeeSays(employee directory.Employee, turns ...telephonytest.Turn) {
	c.speech.Script(telephonytest.EmployeeIdentity(employee.PhoneNumber), turns...)
}

func (c *testCall) handle(ctx context.Context) *CallSession {
	return c.orchestrator.Handle(ctx, InboundCall{
		SessionID:   "s-1",
		Room:        telephony.Room{Name: callerRoom},
		Caller:      telephony.Participant{Identity: callerIdentity},
		Agent:       telephony.Participant{Identity: telephonytest.AgentPrefix + callerRoom},
		CallerPhone: callerPhone,
	})
}

func (c *testCall) consultationRoom(t *testing.T) string {
	t.Helper()

	for _, call := range c.rooms.Calls() {
		if name, ok := strings.CutPrefix(call, "create:"); ok {
			return name
		}
	}

	t.Fatal("no consultation room was created")

	return ""
}

func (c *testCall) dialed() bool {
	for _, call := range c.rooms.Calls() {
		if strings.HasPrefix(call, "dial:") {
			return true
		}
	}

	return false
}

func TestJaneDoeAcceptsAndIsConnected(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.callerSays(telephonytest.Says("Hi, this is Anna Berg, I'd like to speak to Jane Doe about the quarterly invoice."))
	c.employeeSays(janeDoe, telephonytest.Says("yes, put them through"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeTransferred, sess.Outcome())
	require.Equal(t, PhaseClosed, sess.Phase())
	require.Equal(t, "accepted", sess.ConsultationOutcome)
	require.Equal(t, "Anna Berg", sess.CallerName)
	require.Equal(t, "the quarterly invoice", sess.Reason)

	require.Len(t, c.callLogs.records, 1)
	record := c.callLogs.records[0]
	require.Equal(t, calllog.StatusTransferred, record.Status)
	require.NotNil(t, record.EmployeeID)
	require.Equal(t, janeDoe.ID, *record.EmployeeID)
	require.Empty(t, c.messages.saved)

	consultRoom := c.consultationRoom(t)
	require.True(t, c.rooms.Has(consultRoom, callerIdentity))
	require.True(t, c.rooms.Has(consultRoom, telephonytest.EmployeeIdentity(janeDoe.PhoneNumber)))
	require.False(t, c.rooms.Has(consultRoom, telephonytest.AgentPrefix+consultRoom))
	require.Zero(t, c.rooms.Destroyed(consultRoom))
	require.Equal(t, 1, c.rooms.Destroyed(callerRoom))

	require.Contains(t, c.speech.SaidIn(consultRoom), "Anna Berg, you're now connected with Jane Doe. Have a good conversation.")
	require.Equal(t, 1, c.events.started)
	require.Len(t, c.events.ended, 1)
	require.Equal(t, []events.TransferRequested{{
		SessionID:   "s-1",
		EmployeeID:  janeDoe.ID,
		CallerName:  "Anna Berg",
		CallerPhone: callerPhone,
		Reason:      "the quarterly invoice",
	}}, c.events.transfers)
}

func TestJohnSmithNeverAnswersAndMessageIsTaken(t *testing.T) {
	c := newTestCall(50 * time.Millisecond)
	c.withEmployee(johnSmith, true)
	c.callerSays(
		telephonytest.Says("Can I talk to John Smith please"),
		telephonytest.Says("Please ask him to call me back about the invoice"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, PhaseClosed, sess.Phase())
	require.Equal(t, "timed_out", sess.ConsultationOutcome)

	require.Len(t, c.callLogs.records, 1)
	require.Equal(t, calllog.StatusMessageTaken, c.callLogs.records[0].Status)

	require.Len(t, c.messages.saved, 1)
	msg := c.messages.saved[0]
	require.Equal(t, "Please ask him to call me back about the invoice", msg.Text)
	require.Equal(t, johnSmith.ID, *msg.ToEmployeeID)
	require.Equal(t, callerPhone, msg.FromPhone)
	require.Len(t, c.events.created, 1)

	require.Equal(t, 1, c.rooms.Destroyed(c.consultationRoom(t)))

	said := c.speech.SaidIn(callerRoom)
	require.Contains(t, said, "I'm sorry, John Smith isn't available right now. Please leave your message after the tone, and I'll make sure John Smith gets it.")
	require.Equal(t, fmt.Sprintf(goodbye, companyName), said[len(said)-1])
}

func TestDirectoryUnavailableGoesStraightToMessage(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.directory.err = fmt.Errorf("%w: deadline exceeded", directory.ErrDirectoryUnavailable)
	c.callerSays(
		telephonytest.Says("connect me to sales"),
		telephonytest.Says("Please call me back"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "directory_unavailable", sess.ConsultationOutcome)
	require.False(t, c.dialed())
	require.Len(t, c.messages.saved, 1)
	require.Nil(t, c.messages.saved[0].ToEmployeeID)
}

func TestNoAvailableEmployeeSkipsConsultation(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, false)
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Tell her Anna called"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "unavailable", sess.ConsultationOutcome)
	require.False(t, c.dialed())
	require.Len(t, c.messages.saved, 1)
	require.Equal(t, janeDoe.ID, *c.messages.saved[0].ToEmployeeID)
}

func TestAvailabilityChecksDownIsDirectoryUnavailable(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.directory.availabilityErr = fmt.Errorf("%w: deadline exceeded", directory.ErrDirectoryUnavailable)
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Please call me back"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "directory_unavailable", sess.ConsultationOutcome)
	require.False(t, c.dialed())
	require.Contains(t, c.speech.SaidIn(callerRoom), messagePrompt(directoryDown, "Jane Doe"))
	require.Equal(t, janeDoe.ID, *c.messages.saved[0].ToEmployeeID)
}

func TestNoDirectoryMatch(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.callerSays(
		telephonytest.Says("I'd like to speak to Nobody Known"),
		telephonytest.Says("Please call me back"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "no_match", sess.ConsultationOutcome)
	require.False(t, c.dialed())
}

func TestCallLogFailureIsFlaggedAndSessionCloses(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.callLogs.err = errors.New("database is down")
	c.withEmployee(janeDoe, false)
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Please call me back"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, PhaseClosed, sess.Phase())
	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.True(t, sess.NeedsReconciliation)
	require.Len(t, c.reconciler.callLogs, 1)
	require.True(t, c.reconciler.callLogs[0].NeedsReconciliation)

	said := c.speech.SaidIn(callerRoom)
	require.Equal(t, fmt.Sprintf(goodbye, companyName), said[len(said)-1])
	require.Equal(t, 1, c.rooms.Destroyed(callerRoom))
}

func TestMessageFailureIsFlagged(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.messages.err = errors.New("database is down")
	c.withEmployee(janeDoe, false)
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Please call me back"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.True(t, sess.NeedsReconciliation)
	require.Len(t, c.reconciler.messages, 1)
	require.Equal(t, "Please call me back", c.reconciler.messages[0].Text)
	require.Empty(t, c.events.created)
	require.True(t, c.callLogs.records[0].NeedsReconciliation)
}

func TestCallerHangsUpDuringGreeting(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.callerSays(telephonytest.HangsUp())

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeAbandoned, sess.Outcome())
	require.Equal(t, PhaseClosed, sess.Phase())
	require.Equal(t, calllog.StatusAbandoned, c.callLogs.records[0].Status)
	require.Equal(t, 1, c.rooms.Destroyed(callerRoom))
	require.NotContains(t, c.speech.SaidIn(callerRoom), fmt.Sprintf(goodbye, companyName))
}

func TestCallerDisconnectDuringConsultation(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.callerSays(telephonytest.Says("I'd like to speak to Jane Doe"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.rooms.OnDial = func(telephony.Room, telephony.Participant) { cancel() }

	sess := c.handle(ctx)

	require.Equal(t, OutcomeAbandoned, sess.Outcome())
	require.Equal(t, PhaseClosed, sess.Phase())
	require.Equal(t, 1, c.rooms.Destroyed(c.consultationRoom(t)))
	require.Equal(t, 1, c.rooms.Destroyed(callerRoom))
	require.Len(t, c.callLogs.records, 1)
}

func TestMergeRetriesThenSucceeds(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.rooms.MoveErrs = []error{telephony.ErrServerError}
	c.callerSays(telephonytest.Says("I'd like to speak to Jane Doe"))
	c.employeeSays(janeDoe, telephonytest.Presses("1"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeTransferred, sess.Outcome())
	require.True(t, c.rooms.Has(c.consultationRoom(t), callerIdentity))
}

func TestMergeFailureFallsBackToMessage(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.rooms.MoveErrs = []error{telephony.ErrServerError, telephony.ErrServerError, telephony.ErrServerError}
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Please call me back"),
	)
	c.employeeSays(janeDoe, telephonytest.Presses("1"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, mergeFailedOutcome, sess.ConsultationOutcome)
	require.Equal(t, 1, c.rooms.Destroyed(c.consultationRoom(t)))
	require.True(t, c.rooms.Has(callerRoom, callerIdentity))
	require.Contains(t, c.speech.SaidIn(callerRoom), messagePrompt(transferTrouble, "Jane Doe"))
}

func TestLostMergeReplyStillConnectsCaller(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.rooms.LostMoveReplies = []error{telephony.ErrServerError}
	c.callerSays(telephonytest.Says("I'd like to speak to Jane Doe"))
	c.employeeSays(janeDoe, telephonytest.Presses("1"))

	sess := c.handle(context.Background())

	consultRoom := c.consultationRoom(t)
	require.Equal(t, OutcomeTransferred, sess.Outcome())
	require.Equal(t, "accepted", sess.ConsultationOutcome)
	require.Zero(t, c.rooms.Destroyed(consultRoom))
	require.True(t, c.rooms.Has(consultRoom, callerIdentity))
	require.True(t, c.rooms.Has(consultRoom, telephonytest.EmployeeIdentity(janeDoe.PhoneNumber)))

	moves := 0

	for _, call := range c.rooms.Calls() {
		if strings.HasPrefix(call, "move:") {
			moves++
		}
	}

	require.Equal(t, 1, moves)
}

func TestMergeGoneWhileCallerStillHomeTakesMessage(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.rooms.MoveErrs = []error{telephony.ErrParticipantGone}
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Please call me back"),
	)
	c.employeeSays(janeDoe, telephonytest.Presses("1"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, mergeFailedOutcome, sess.ConsultationOutcome)
	require.Equal(t, 1, c.rooms.Destroyed(c.consultationRoom(t)))
	require.Len(t, c.messages.saved, 1)
}

func TestEmployeeLeavingDuringMergeReturnsCaller(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.rooms.EmployeeLeavesOnMerge = true
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Please call me back"),
	)
	c.employeeSays(janeDoe, telephonytest.Presses("1"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "employee_left", sess.ConsultationOutcome)
	require.Equal(t, 1, c.rooms.Destroyed(c.consultationRoom(t)))
	require.Equal(t, 1, c.rooms.Destroyed(callerRoom))
}

func TestEmployeeAsksForMessageWithReply(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, true)
	c.callerSays(
		telephonytest.Says("I'd like to speak to Jane Doe"),
		telephonytest.Says("Fine, please have her call me"),
	)
	c.employeeSays(janeDoe, telephonytest.Says("message: I'm in a workshop until three"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "message_requested", sess.ConsultationOutcome)
	require.Contains(t, c.speech.SaidIn(callerRoom), "Jane Doe asked me to pass on: I'm in a workshop until three")
	require.Equal(t, "Fine, please have her call me", c.messages.saved[0].Text)
	require.Contains(t, *c.callLogs.records[0].Notes, "employee replied: I'm in a workshop until three")
}

func TestUnresolvedIntentTakesMessage(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.callerSays(
		telephonytest.Says("hmm"),
		telephonytest.Silence(),
		telephonytest.Says("Just tell someone I called"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Contains(t, c.speech.SaidIn(callerRoom), repromptIntent)
	require.Equal(t, "Just tell someone I called", c.messages.saved[0].Text)
	require.Nil(t, c.messages.saved[0].ToEmployeeID)
}

func TestCallerWhoWantsToLeaveMessage(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.callerSays(
		telephonytest.Says("I'd just like to leave a message"),
		telephonytest.Says("The delivery is late"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "The delivery is late", sess.MessageText)
	require.False(t, c.dialed())
}

func TestSilentCallerStillLeavesCallbackRequest(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.withEmployee(janeDoe, false)
	c.callerSays(telephonytest.Says("I'd like to speak to Jane Doe about my order"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "my order", c.messages.saved[0].Text)
	require.Contains(t, sess.Notes, "caller left no message")
}

func TestPanicIsContainedAndResourcesReleased(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.directory.panics = true
	c.callerSays(telephonytest.Says("I'd like to speak to Jane Doe"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeFailed, sess.Outcome())
	require.Equal(t, PhaseClosed, sess.Phase())
	require.Equal(t, calllog.StatusFailed, c.callLogs.records[0].Status)
	require.Equal(t, 1, c.rooms.Destroyed(callerRoom))
}

func TestClosedCompanyTakesMessageWithoutDirectory(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.orchestrator.Hours = fixedHours(false)
	c.withEmployee(janeDoe, true)
	c.callerSays(telephonytest.Says("Please ask Jane Doe to call me back tomorrow"))

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Equal(t, "company_closed", sess.ConsultationOutcome)
	require.Equal(t, "Please ask Jane Doe to call me back tomorrow", sess.MessageText)
	require.False(t, c.dialed())
	require.Empty(t, c.events.transfers)

	require.Len(t, c.messages.saved, 1)
	require.Nil(t, c.messages.saved[0].ToEmployeeID)

	said := c.speech.SaidIn(callerRoom)
	require.Equal(t, fmt.Sprintf(closedNotice, companyName), said[0])
	require.Contains(t, said, askForMessageNoName)
}

func TestOpenCompanyGreetsAsUsual(t *testing.T) {
	c := newTestCall(5 * time.Second)
	c.orchestrator.Hours = fixedHours(true)
	c.callerSays(
		telephonytest.Says("I'd just like to leave a message"),
		telephonytest.Says("The delivery is late"),
	)

	sess := c.handle(context.Background())

	require.Equal(t, OutcomeMessageTaken, sess.Outcome())
	require.Empty(t, sess.ConsultationOutcome)
	require.Equal(t, "Thank you for calling Acme. How may I direct your call?", c.speech.SaidIn(callerRoom)[0])
}

func TestGreetingUsesCallerName(t *testing.T) {
	require.Equal(t, "Hello Anna, thank you for calling.", greeting("Thank you for calling.", "Anna"))
	require.Equal(t, "Thank you for calling.", greeting("Thank you for calling.", ""))
}
