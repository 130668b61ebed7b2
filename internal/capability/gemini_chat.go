// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiChatModel calls Google's generative-ai-go client for chat
// completion, buffered and streamed.
type GeminiChatModel struct {
	client *genai.Client
	model  string
}

// NewGeminiChatModel creates a chat model for the given Gemini model name.
func NewGeminiChatModel(ctx context.Context, apiKey, model string) (*GeminiChatModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiChatModel{client: client, model: model}, nil
}

func (c *GeminiChatModel) Name() string { return c.model }

// Close releases the underlying client.
func (c *GeminiChatModel) Close() error { return c.client.Close() }

func (c *GeminiChatModel) buildModel(params Params) *genai.GenerativeModel {
	m := c.client.GenerativeModel(c.model)
	m.SetTemperature(params.Temperature)
	if params.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		m.StopSequences = params.Stop
	}
	return m
}

// flattenPrompt joins messages into one prompt body. Gemini's system
// instruction field is left unset; the system message is folded into the
// prompt the way the pack's triage prompt builder does it.
func flattenPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == RoleSystem {
			b.WriteString(m.Content)
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func (c *GeminiChatModel) Complete(ctx context.Context, messages []Message, params Params) (CompletionResult, error) {
	model := c.buildModel(params)
	resp, err := model.GenerateContent(ctx, genai.Text(flattenPrompt(messages)))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("generate content: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return CompletionResult{}, fmt.Errorf("empty response from gemini")
	}

	result := CompletionResult{Text: text, Model: c.model}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

func (c *GeminiChatModel) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, error) {
	model := c.buildModel(params)
	iter := model.GenerateContentStream(ctx, genai.Text(flattenPrompt(messages)))

	out := make(chan Token, 16)
	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				out <- Token{Done: true}
				return
			}
			if err != nil {
				return
			}
			if text := extractText(resp); text != "" {
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
