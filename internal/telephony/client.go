package telephony

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// listen requests are held open by the platform until the speaker finishes
const listenGrace = 5 * time.Second

type Options struct {
	BaseURL               string
	APIKey                string
	Timeout               time.Duration
	ListenTimeout         time.Duration
	RetryMaxAttempts      uint
	RetryBackoffMin       time.Duration
	RetryBackoffMax       time.Duration
	IntervalCB            time.Duration
	ConsecutiveFailuresCB uint32
}

func OptionsFromConfig() Options {
	return Options{
		BaseURL:               config.Conf.TelephonyBaseURL,
		APIKey:                config.Conf.TelephonyAPIKey,
		Timeout:               time.Duration(config.Conf.TelephonyTimeout) * time.Second,
		ListenTimeout:         time.Duration(config.Conf.ListenTimeout) * time.Second,
		RetryMaxAttempts:      config.Conf.TelephonyRetryMaxAttempts,
		RetryBackoffMin:       time.Duration(config.Conf.TelephonyRetryBackoffMinMillis) * time.Millisecond,
		RetryBackoffMax:       time.Duration(config.Conf.TelephonyRetryBackoffMaxMillis) * time.Millisecond,
		IntervalCB:            time.Duration(config.Conf.TelephonyIntervalCB) * time.Second,
		ConsecutiveFailuresCB: config.Conf.TelephonyConsecutiveFailuresCB,
	}
}

type reply struct {
	statusCode int
	body       []byte
}

// Client implements RoomProvider and Speech against the platform REST API.
type Client struct {
	Options        Options
	HTTPClient     *http.Client
	CircuitBreaker *gobreaker.CircuitBreaker[*reply]
}

func NewClient(opts Options) *Client {
	cbSettings := gobreaker.Settings{
		Name:     "Telephony",
		Interval: opts.IntervalCB,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.TelephonyService)
			}
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrServerError)
		},
	}

	return &Client{
		Options:        opts,
		HTTPClient:     &http.Client{},
		CircuitBreaker: gobreaker.NewCircuitBreaker[*reply](cbSettings),
	}
}

type roomRequest struct {
	Name string `json:"name"`
}

type dialRequest struct {
	PhoneNumber       string `json:"phone_number"`
	WaitUntilAnswered bool   `json:"wait_until_answered"`
}

type dialFailure struct {
	SIPStatusCode int    `json:"sip_status_code"`
	SIPStatus     string `json:"sip_status"`
}

type moveRequest struct {
	DestinationRoom string `json:"destination_room"`
}

type sayRequest struct {
	Text string `json:"text"`
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type listenRequest struct {
	Participant    string `json:"participant"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (client *Client) CreateRoom(ctx context.Context, name string) (Room, error) {
	resp, err := client.do(ctx, http.MethodPost, true, roomRequest{Name: name}, "rooms")
	if err != nil {
		return Room{}, err
	}

	switch resp.statusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
	default:
		return Room{}, unexpected("create room", resp)
	}

	return Room{Name: name}, nil
}

func (client *Client) DestroyRoom(ctx context.Context, room Room) error {
	resp, err := client.do(ctx, http.MethodDelete, true, nil, "rooms", room.Name)
	if err != nil {
		return err
	}

	switch resp.statusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return unexpected("destroy room", resp)
	}
}

func (client *Client) AddAgent(ctx context.Context, room Room) (Participant, error) {
	resp, err := client.do(ctx, http.MethodPost, false, nil, "rooms", room.Name, "agents")
	if err != nil {
		return Participant{}, err
	}

	if resp.statusCode == http.StatusNotFound {
		return Participant{}, ErrRoomNotFound
	}

	return decodeParticipant("add agent", resp)
}

// DialParticipant blocks until the callee answers or the platform gives up.
func (client *Client) DialParticipant(ctx context.Context, room Room, phoneNumber string) (Participant, error) {
	resp, err := client.do(
		ctx,
		http.MethodPost,
		false,
		dialRequest{PhoneNumber: phoneNumber, WaitUntilAnswered: true},
		"rooms", room.Name, "sip-participants",
	)
	if err != nil {
		return Participant{}, &DialError{PhoneNumber: phoneNumber, Cause: err}
	}

	if resp.statusCode == http.StatusOK || resp.statusCode == http.StatusCreated {
		return decodeParticipant("dial", resp)
	}

	var failure dialFailure

	err = json.Unmarshal(resp.body, &failure)
	if err != nil || failure.SIPStatusCode == 0 {
		return Participant{}, &DialError{PhoneNumber: phoneNumber, Cause: unexpected("dial", resp)}
	}

	return Participant{}, &DialError{
		PhoneNumber: phoneNumber,
		SIPCode:     failure.SIPStatusCode,
		SIPReason:   failure.SIPStatus,
	}
}

func (client *Client) MoveParticipant(ctx context.Context, participant Participant, from, to Room) error {
	resp, err := client.do(
		ctx,
		http.MethodPost,
		true,
		moveRequest{DestinationRoom: to.Name},
		"rooms", from.Name, "participants", participant.Identity, "move",
	)
	if err != nil {
		return err
	}

	switch resp.statusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		return ErrParticipantGone
	default:
		return unexpected("move participant", resp)
	}
}

func (client *Client) RemoveParticipant(ctx context.Context, room Room, participant Participant) error {
	resp, err := client.do(ctx, http.MethodDelete, true, nil, "rooms", room.Name, "participants", participant.Identity)
	if err != nil {
		return err
	}

	switch resp.statusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return unexpected("remove participant", resp)
	}
}

func (client *Client) HasParticipant(ctx context.Context, room Room, participant Participant) (bool, error) {
	resp, err := client.do(ctx, http.MethodGet, true, nil, "rooms", room.Name, "participants", participant.Identity)
	if err != nil {
		return false, err
	}

	switch resp.statusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		return false, nil
	default:
		return false, unexpected("get participant", resp)
	}
}

func (client *Client) Say(ctx context.Context, room Room, text string) error {
	resp, err := client.do(ctx, http.MethodPost, false, sayRequest{Text: text}, "rooms", room.Name, "say")
	if err != nil {
		return err
	}

	switch resp.statusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		return ErrParticipantGone
	default:
		return unexpected("say", resp)
	}
}

// SendSMS sends a text message from the company number. It is not retried so
// an employee never gets the same text twice.
func (client *Client) SendSMS(ctx context.Context, phoneNumber, body string) error {
	resp, err := client.do(ctx, http.MethodPost, false, smsRequest{To: phoneNumber, Body: body}, "sms")
	if err != nil {
		return err
	}

	switch resp.statusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return unexpected("send sms", resp)
	}
}

// Listen returns an empty utterance when the speaker stayed silent for the whole window.
func (client *Client) Listen(ctx context.Context, room Room, from Participant) (Utterance, error) {
	resp, err := client.do(
		ctx,
		http.MethodPost,
		false,
		listenRequest{Participant: from.Identity, TimeoutSeconds: int(client.Options.ListenTimeout.Seconds())},
		"rooms", room.Name, "listen",
	)
	if err != nil {
		return Utterance{}, err
	}

	switch resp.statusCode {
	case http.StatusOK:
	case http.StatusRequestTimeout, http.StatusNoContent:
		return Utterance{}, nil
	case http.StatusNotFound, http.StatusGone:
		return Utterance{}, ErrParticipantGone
	default:
		return Utterance{}, unexpected("listen", resp)
	}

	var utterance Utterance

	err = json.Unmarshal(resp.body, &utterance)
	if err != nil {
		return Utterance{}, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}

	return utterance, nil
}

func decodeParticipant(op string, resp *reply) (Participant, error) {
	if resp.statusCode != http.StatusOK && resp.statusCode != http.StatusCreated {
		return Participant{}, unexpected(op, resp)
	}

	var participant Participant

	err := json.Unmarshal(resp.body, &participant)
	if err != nil {
		return Participant{}, fmt.Errorf("%w: %w", ErrUnexpectedReply, err)
	}

	if participant.Identity == "" {
		return Participant{}, fmt.Errorf("%w: %s returned no participant identity", ErrUnexpectedReply, op)
	}

	return participant, nil
}

func unexpected(op string, resp *reply) error {
	return fmt.Errorf("%w: %s returned status %d", ErrUnexpectedReply, op, resp.statusCode)
}

// do sends one API call through the circuit breaker. Server errors and
// transport failures are retried with backoff when retryable is set.
func (client *Client) do(
	ctx context.Context,
	method string,
	retryable bool,
	payload any,
	pathElems ...string,
) (*reply, error) {
	apiUrl, err := url.JoinPath(client.Options.BaseURL, append([]string{"v1"}, pathElems...)...)
	if err != nil {
		return nil, err
	}

	var reqBody []byte
	if payload != nil {
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	attempts := uint(1)
	if retryable && client.Options.RetryMaxAttempts > 0 {
		attempts = client.Options.RetryMaxAttempts
	}

	return client.CircuitBreaker.Execute(func() (*reply, error) {
		var resp *reply

		err := retry.Do(
			func() error {
				var err error

				resp, err = client.doRequest(ctx, method, apiUrl, reqBody)

				return err
			},
			retry.Attempts(attempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(client.Options.RetryBackoffMin),
			retry.MaxDelay(client.Options.RetryBackoffMax),
			retry.RetryIf(func(err error) bool {
				return errors.Is(err, ErrServerError)
			}),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return nil, err
		}

		return resp, nil
	})
}

func (client *Client) doRequest(ctx context.Context, method, apiUrl string, reqBody []byte) (*reply, error) {
	timeout := client.Options.Timeout
	if strings.HasSuffix(apiUrl, "/listen") {
		timeout = client.Options.ListenTimeout + listenGrace
	}

	reqCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc

		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if reqBody != nil {
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, apiUrl, body)
	if err != nil {
		return nil, err
	}

	if client.Options.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+client.Options.APIKey)
	}

	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	resp, err := client.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}

	defer func() {
		cerr := resp.Body.Close()
		if cerr != nil {
			logging.Logger.Error("Failed to close response body", zap.String("error", cerr.Error()))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerError, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		logging.Logger.Warn("[doRequest] telephony server error",
			zap.String("method", method),
			zap.String("url", apiUrl),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", respBody),
		)

		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}

	return &reply{statusCode: resp.StatusCode, body: respBody}, nil
}

// Ping checks the platform API answers; used by the health checker.
func (client *Client) Ping(ctx context.Context) error {
	resp, err := client.do(ctx, http.MethodGet, false, nil, "health")
	if err != nil {
		return err
	}

	if resp.statusCode != http.StatusOK {
		return unexpected("health", resp)
	}

	return nil
}
