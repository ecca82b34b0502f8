package aitask

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ankiops/ankiops/internal/ankierr"
)

// ErrAPIKeyRequired is returned when a provider needs an API key that was
// never supplied.
var ErrAPIKeyRequired = errors.New("API key required")

// Provider generates a single field value from a rendered prompt. This is
// the seam list-providers enumerates and Run calls through; today
// Anthropic is the only implementation, but the interface keeps later
// providers from requiring changes to the pool or orchestrator.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// AnthropicProvider calls the Anthropic Messages API, retrying transient
// failures with exponential backoff. Grounded on the teacher's
// internal/compact/haiku.go callWithRetry, with the OTel instrumentation
// dropped (see DESIGN.md) and generalized from one fixed prompt template
// to an arbitrary caller-supplied prompt per call.
type AnthropicProvider struct {
	client         anthropic.Client
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicProvider constructs a provider backed by the given API key.
func NewAnthropicProvider(apiKey string, maxRetries int, initialBackoff time.Duration) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "create anthropic provider", ErrAPIKeyRequired)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	return &AnthropicProvider{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Name identifies this provider for list-providers and audit entries.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate sends prompt to model and returns the first text block of the
// response, retrying on timeouts and 429/5xx responses.
func (p *AnthropicProvider) Generate(ctx context.Context, model, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := p.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", ankierr.Wrap(ankierr.ErrStoreProtocol, "anthropic generate", fmt.Errorf("empty response"))
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", ankierr.Wrap(ankierr.ErrStoreProtocol, "anthropic generate", fmt.Errorf("unexpected content type %q", content.Type))
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", ankierr.Wrap(ankierr.ErrStoreTransport, "anthropic generate", err)
		}
	}
	return "", ankierr.Wrap(ankierr.ErrStoreTransport, "anthropic generate", fmt.Errorf("failed after %d attempts: %w", p.maxRetries+1, lastErr))
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
