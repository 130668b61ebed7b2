// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package capability

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/northbound/wikify/internal/wikierr"
)

// OpenAIChatModel calls the Chat Completions API, buffered or streamed over
// server-sent events.
type OpenAIChatModel struct {
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIChatModel creates a chat model for the given model name.
func NewOpenAIChatModel(apiKey, model string) *OpenAIChatModel {
	return &OpenAIChatModel{apiKey: apiKey, model: model, client: &http.Client{Timeout: 60 * time.Second}}
}

func (c *OpenAIChatModel) Name() string { return c.model }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toOpenAIMessages(messages []Message) []openaiMessage {
	out := make([]openaiMessage, len(messages))
	for i, m := range messages {
		out[i] = openaiMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (c *OpenAIChatModel) buildPayload(messages []Message, params Params, stream bool) map[string]interface{} {
	payload := map[string]interface{}{
		"model":       c.model,
		"messages":    toOpenAIMessages(messages),
		"temperature": params.Temperature,
		"stream":      stream,
	}
	if params.MaxTokens > 0 {
		payload["max_tokens"] = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		payload["stop"] = params.Stop
	}
	return payload
}

func (c *OpenAIChatModel) Complete(ctx context.Context, messages []Message, params Params) (CompletionResult, error) {
	body, err := json.Marshal(c.buildPayload(messages, params, false))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return CompletionResult{}, wikierr.RateLimited(10 * time.Second)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return CompletionResult{}, fmt.Errorf("openai chat error (status %d): %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResult{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("no choices in openai chat response")
	}

	return CompletionResult{
		Text:         strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIChatModel) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, error) {
	body, err := json.Marshal(c.buildPayload(messages, params, true))
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, wikierr.RateLimited(10 * time.Second)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openai chat error (status %d): %s", resp.StatusCode, string(raw))
	}

	out := make(chan Token, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				out <- Token{Done: true}
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				select {
				case out <- Token{Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
