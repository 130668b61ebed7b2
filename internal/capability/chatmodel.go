// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package capability

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/northbound/wikify/internal/wikierr"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat completion request.
type Message struct {
	Role    Role
	Content string
}

// Params controls generation. MaxTokens of zero means provider default.
type Params struct {
	Temperature float32
	MaxTokens   int
	Stop        []string
}

// CompletionResult is the buffered response of ChatModel.Complete.
type CompletionResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Token is one unit of a streamed completion.
type Token struct {
	Text string
	// Done marks the final token; Text on the final token is always empty.
	Done bool
}

// ChatModel generates text completions, buffered or streamed. Both modes
// must surface the same error kinds (RateLimited, Timeout, ProviderError
// wrapped as a generic error).
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, params Params) (CompletionResult, error)
	Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, error)
	Name() string
}

// NewChatModel builds a ChatModel from a provider name and config, wrapped
// in a client-side rate limiter. Supported providers: "openai", "gemini",
// "mock".
func NewChatModel(ctx context.Context, provider string, config map[string]string) (ChatModel, error) {
	var (
		inner ChatModel
		err   error
	)

	switch provider {
	case "openai":
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, wikierr.Validation("api_key", "", "non-empty OpenAI API key")
		}
		model := config["model"]
		if model == "" {
			model = "gpt-4o-mini"
		}
		inner = NewOpenAIChatModel(apiKey, model)
	case "gemini":
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, wikierr.Validation("api_key", "", "non-empty Gemini API key")
		}
		model := config["model"]
		if model == "" {
			model = "gemini-2.0-flash-lite"
		}
		inner, err = NewGeminiChatModel(ctx, apiKey, model)
	case "mock":
		inner = NewMockChatModel()
	default:
		return nil, wikierr.Validation("provider", provider, "one of openai, gemini, mock")
	}
	if err != nil {
		return nil, err
	}

	rps := rate.Limit(5)
	burst := 5
	if config["rate_limit_rps"] != "" {
		var v float64
		fmt.Sscanf(config["rate_limit_rps"], "%f", &v)
		if v > 0 {
			rps = rate.Limit(v)
			burst = int(v)
			if burst < 1 {
				burst = 1
			}
		}
	}
	return &rateLimitedChatModel{inner: inner, limiter: rate.NewLimiter(rps, burst)}, nil
}

type rateLimitedChatModel struct {
	inner   ChatModel
	limiter *rate.Limiter
}

func (r *rateLimitedChatModel) Name() string { return r.inner.Name() }

func (r *rateLimitedChatModel) Complete(ctx context.Context, messages []Message, params Params) (CompletionResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return CompletionResult{}, wikierr.Timeout("chat_complete", 0)
	}
	return r.inner.Complete(ctx, messages, params)
}

func (r *rateLimitedChatModel) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, wikierr.Timeout("chat_stream", 0)
	}
	return r.inner.Stream(ctx, messages, params)
}
