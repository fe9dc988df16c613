package intent

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrEmptyCompletion = errors.New("completion has no choices")

const systemPrompt = `You are the switchboard of a company phone line. Extract the caller's request from
their words and reply with a single JSON object and nothing else:
{"person": "", "department": "", "reason": "", "caller_name": "", "wants_message": false}
person is the full name of the employee they want, department the team they want, reason
why they are calling, caller_name their own name if they said it, and wants_message true
only when they ask to leave a message. Leave unknown fields empty. Callers may speak English
or Swedish.`

type OpenAIOptions struct {
	BaseURL               string
	APIKey                string
	Model                 string
	Timeout               time.Duration
	RetryAttempts         uint
	IntervalCB            time.Duration
	ConsecutiveFailuresCB uint32
}

func OpenAIOptionsFromConfig() OpenAIOptions {
	return OpenAIOptions{
		BaseURL:               config.Conf.OpenAIBaseURL,
		APIKey:                config.Conf.OpenAIAPIKey,
		Model:                 config.Conf.OpenAIModel,
		Timeout:               time.Duration(config.Conf.OpenAITimeout) * time.Second,
		RetryAttempts:         2,
		IntervalCB:            time.Duration(config.Conf.OpenAIIntervalCB) * time.Second,
		ConsecutiveFailuresCB: config.Conf.OpenAIConsecutiveFailuresCB,
	}
}

type OpenAIParser struct {
	Client         *openai.Client
	Options        OpenAIOptions
	CircuitBreaker *gobreaker.CircuitBreaker[string]
	Fallback       Parser
}

func NewOpenAIParser(opts OpenAIOptions, fallback Parser) *OpenAIParser {
	requestOpts := []option.RequestOption{
		option.WithRequestTimeout(opts.Timeout),
		option.WithMaxRetries(0),
	}

	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}

	if opts.APIKey != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(requestOpts...)

	return &OpenAIParser{
		Client:         &client,
		Options:        opts,
		CircuitBreaker: newOpenAICircuitBreaker(opts),
		Fallback:       fallback,
	}
}

// An open breaker only sends traffic to the fallback parser, so it does not
// signal the health checker.
func newOpenAICircuitBreaker(opts OpenAIOptions) *gobreaker.CircuitBreaker[string] {
	settings := gobreaker.Settings{
		Name:     "OpenAIIntent",
		Interval: opts.IntervalCB,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)
		},
	}

	return gobreaker.NewCircuitBreaker[string](settings)
}

func (openAIParser *OpenAIParser) Parse(ctx context.Context, utterance string) (Intent, error) {
	content, err := openAIParser.CircuitBreaker.Execute(func() (string, error) {
		return openAIParser.complete(ctx, utterance)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Intent{}, ctx.Err()
		}

		logging.Logger.Warn("[Parse] intent completion failed, using fallback parser",
			zap.String("error", err.Error()),
		)

		return openAIParser.Fallback.Parse(ctx, utterance)
	}

	var result Intent

	err = json.Unmarshal([]byte(extractJSON(content)), &result)
	if err != nil {
		logging.Logger.Warn("[Parse] intent completion is not valid JSON, using fallback parser",
			zap.String("content", content),
			zap.String("error", err.Error()),
		)

		return openAIParser.Fallback.Parse(ctx, utterance)
	}

	result.Person = strings.TrimSpace(result.Person)
	result.Reason = strings.TrimSpace(result.Reason)
	result.CallerName = strings.TrimSpace(result.CallerName)

	if result.Department != "" {
		result.Department, _ = directory.CanonicalDepartment(result.Department)
	}

	return result, nil
}

func (openAIParser *OpenAIParser) complete(ctx context.Context, utterance string) (string, error) {
	var content string

	err := retry.Do(
		func() error {
			resp, err := openAIParser.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: openai.ChatModel(openAIParser.Options.Model),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(systemPrompt),
					openai.UserMessage(utterance),
				},
				Temperature: openai.Float(0),
			})
			if err != nil {
				return err
			}

			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			content = resp.Choices[0].Message.Content

			return nil
		},
		retry.Attempts(max(openAIParser.Options.RetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(100*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)

	return content, err
}

// extractJSON strips prose or code fences some models wrap around the object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start < 0 || end < start {
		return content
	}

	return content[start : end+1]
}
