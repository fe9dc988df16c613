package receptionist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/session"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	EventCallerJoined = "caller_joined"
	EventCallerLeft   = "caller_left"
)

const claimReleaseTimeout = 2 * time.Second

var (
	ErrInvalidEvent  = errors.New("invalid telephony event")
	ErrUnknownEvent  = errors.New("unknown telephony event")
	ErrDuplicateCall = errors.New("caller room already has a session")
)

// TelephonyEvent is published by the platform when a participant joins or
// leaves an inbound room.
type TelephonyEvent struct {
	Event       string    `json:"event"`
	Room        string    `json:"room"`
	Participant string    `json:"participant"`
	Agent       string    `json:"agent"`
	CallerPhone string    `json:"caller_phone"`
	CallerName  string    `json:"caller_name"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type CallHandler interface {
	Handle(ctx context.Context, call session.InboundCall) *session.CallSession
}

// CallClaims dedupes join events across replicas.
type CallClaims interface {
	Claim(ctx context.Context, room, sessionID string) (bool, error)
	Release(ctx context.Context, room, sessionID string) error
}

// Dispatcher turns telephony events into call sessions on the worker pool and
// cancels a session when its caller leaves.
type Dispatcher struct {
	Handler CallHandler
	Pool    *ants.Pool
	// Claims is optional.
	Claims CallClaims

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(handler CallHandler, pool *ants.Pool, claims CallClaims) *Dispatcher {
	return &Dispatcher{
		Handler: handler,
		Pool:    pool,
		Claims:  claims,
		active:  make(map[string]context.CancelFunc),
	}
}

// MessageHandler is the kafka consumer callback. It never blocks on a call.
func (dispatcher *Dispatcher) MessageHandler(ctx context.Context, msg *sarama.ConsumerMessage) {
	var event TelephonyEvent

	err := json.Unmarshal(msg.Value, &event)
	if err != nil {
		logging.Logger.Error("[MessageHandler] failed to decode telephony event",
			zap.String("error", err.Error()),
			zap.ByteString("msg_value", msg.Value),
		)

		return
	}

	recordKafkaLatency(event)

	err = dispatcher.HandleEvent(ctx, event)
	if err != nil && !errors.Is(err, ErrDuplicateCall) {
		logging.Logger.Error("[MessageHandler] failed to handle telephony event",
			zap.String("event", event.Event),
			zap.String("room", event.Room),
			zap.String("error", err.Error()),
		)
	}
}

func (dispatcher *Dispatcher) HandleEvent(ctx context.Context, event TelephonyEvent) error {
	if event.Room == "" {
		return fmt.Errorf("%w: missing room", ErrInvalidEvent)
	}

	switch event.Event {
	case EventCallerJoined:
		return dispatcher.callerJoined(ctx, event)
	case EventCallerLeft:
		dispatcher.callerLeft(event)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event.Event)
	}
}

func (dispatcher *Dispatcher) callerJoined(ctx context.Context, event TelephonyEvent) error {
	if event.Participant == "" {
		return fmt.Errorf("%w: missing participant", ErrInvalidEvent)
	}

	sessionID := uuid.NewString()
	logger := logging.Logger.With(zap.String("session_id", sessionID), zap.String("room", event.Room))

	if !dispatcher.claim(ctx, event.Room, sessionID, logger) {
		return ErrDuplicateCall
	}

	// the session outlives app restarts; a caller_left event or hang-up ends it
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if !dispatcher.register(event.Room, cancel) {
		cancel()
		return ErrDuplicateCall
	}

	call := session.InboundCall{
		SessionID:   sessionID,
		Room:        telephony.Room{Name: event.Room},
		Caller:      telephony.Participant{Identity: event.Participant},
		Agent:       telephony.Participant{Identity: event.Agent},
		CallerPhone: event.CallerPhone,
		CallerName:  event.CallerName,
		JoinedAt:    event.OccurredAt,
	}

	dispatcher.wg.Add(1)

	err := dispatcher.Pool.Submit(func() {
		defer dispatcher.wg.Done()
		defer dispatcher.finish(ctx, event.Room, sessionID, logger)

		prometheus.ActiveSessions.Inc()
		defer prometheus.ActiveSessions.Dec()

		defer func() {
			if r := recover(); r != nil {
				logger.Error("[callerJoined] recovered from panic in session", zap.Any("panic", r))
			}
		}()

		dispatcher.Handler.Handle(sessionCtx, call)
	})
	if err != nil {
		dispatcher.wg.Done()
		dispatcher.finish(ctx, event.Room, sessionID, logger)
		prometheus.RejectedSessions.Inc()

		logger.Error("[callerJoined] failed to schedule call session", zap.String("error", err.Error()))

		return err
	}

	return nil
}

func (dispatcher *Dispatcher) callerLeft(event TelephonyEvent) {
	dispatcher.mu.Lock()
	cancel, ok := dispatcher.active[event.Room]
	dispatcher.mu.Unlock()

	if !ok {
		logging.Logger.Debug("[callerLeft] no session for room", zap.String("room", event.Room))
		return
	}

	logging.Logger.Info("[callerLeft] caller left, ending session", zap.String("room", event.Room))
	cancel()
}

func (dispatcher *Dispatcher) claim(ctx context.Context, room, sessionID string, logger *zap.Logger) bool {
	if dispatcher.Claims == nil {
		return true
	}

	claimed, err := dispatcher.Claims.Claim(ctx, room, sessionID)
	if err != nil {
		logger.Warn("[claim] call claim unavailable, handling locally", zap.String("error", err.Error()))
		return true
	}

	if !claimed {
		logger.Info("[claim] room already handled by another session")
	}

	return claimed
}

func (dispatcher *Dispatcher) register(room string, cancel context.CancelFunc) bool {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	if _, ok := dispatcher.active[room]; ok {
		return false
	}

	dispatcher.active[room] = cancel

	return true
}

func (dispatcher *Dispatcher) finish(ctx context.Context, room, sessionID string, logger *zap.Logger) {
	dispatcher.mu.Lock()
	cancel, ok := dispatcher.active[room]
	delete(dispatcher.active, room)
	dispatcher.mu.Unlock()

	if ok {
		cancel()
	}

	if dispatcher.Claims == nil {
		return
	}

	releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), claimReleaseTimeout)
	defer cancelRelease()

	err := dispatcher.Claims.Release(releaseCtx, room, sessionID)
	if err != nil {
		logger.Warn("[finish] failed to release call claim", zap.String("error", err.Error()))
	}
}

func (dispatcher *Dispatcher) Active() int {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	return len(dispatcher.active)
}

// Wait blocks until every scheduled session has closed.
func (dispatcher *Dispatcher) Wait() {
	dispatcher.wg.Wait()
}

func recordKafkaLatency(event TelephonyEvent) {
	if event.OccurredAt.IsZero() {
		return
	}

	prometheus.KafkaMessageLatency.WithLabelValues(event.Event).Observe(time.Since(event.OccurredAt).Seconds())
}
