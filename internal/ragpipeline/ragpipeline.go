// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package ragpipeline assembles retrieved chunks into a prompt and asks a
// ChatModel for an answer, buffered or streamed, always citing sources and
// never fabricating them.
package ragpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/northbound/wikify/internal/capability"
	"github.com/northbound/wikify/internal/convo"
	"github.com/northbound/wikify/internal/retriever"
)

const systemPrompt = "You are a repository assistant. Answer using ONLY the provided context; " +
	"if the answer isn't in the context, say so. Cite sources by file_path:chunk_index."

// Source is a citation surfaced alongside an answer.
type Source struct {
	ChunkID  string
	FilePath string
	ChunkIdx int
	Score    float32
	Excerpt  string
}

// Metadata describes how an answer was produced.
type Metadata struct {
	ChunksRetrieved int
	RetrievalMS     int64
	GenerationMS    int64
	ModelID         string
	TotalTokens     int
}

// Response is the result of Ask.
type Response struct {
	Answer   string
	Sources  []Source
	Metadata Metadata
}

// StreamEvent is one unit of an AskStream response: either a token or,
// on the final event, the full source list.
type StreamEvent struct {
	Token   string
	Done    bool
	Sources []Source
}

// Pipeline runs one query end to end: retrieve, assemble, generate.
type Pipeline struct {
	retriever *retriever.Retriever
	chat      capability.ChatModel
}

// New builds a Pipeline over a retriever and chat model.
func New(r *retriever.Retriever, chat capability.ChatModel) *Pipeline {
	return &Pipeline{retriever: r, chat: chat}
}

// Ask runs the buffered path: retrieve, assemble, complete. convoCtx is
// optional prior conversation history folded into the prompt between the
// system instructions and the current question; nil means no history.
func (p *Pipeline) Ask(ctx context.Context, repoID, query string, convoCtx *convo.QueryContext, cfg retriever.Config) (Response, error) {
	retrievalStart := time.Now()
	results, err := p.retriever.Retrieve(ctx, repoID, query, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve: %w", err)
	}
	retrievalMS := time.Since(retrievalStart).Milliseconds()

	messages := buildMessages(results, query, convoCtx)

	genStart := time.Now()
	completion, err := p.chat.Complete(ctx, messages, capability.Params{Temperature: 0.2})
	if err != nil {
		return Response{}, fmt.Errorf("complete: %w", err)
	}
	genMS := time.Since(genStart).Milliseconds()

	return Response{
		Answer:  completion.Text,
		Sources: toSources(results),
		Metadata: Metadata{
			ChunksRetrieved: len(results),
			RetrievalMS:     retrievalMS,
			GenerationMS:    genMS,
			ModelID:         p.chat.Name(),
			TotalTokens:     completion.InputTokens + completion.OutputTokens,
		},
	}, nil
}

// AskStream runs the streaming path: tokens are forwarded verbatim, then
// a final event carries the source list.
func (p *Pipeline) AskStream(ctx context.Context, repoID, query string, convoCtx *convo.QueryContext, cfg retriever.Config) (<-chan StreamEvent, error) {
	results, err := p.retriever.Retrieve(ctx, repoID, query, cfg)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	messages := buildMessages(results, query, convoCtx)
	tokens, err := p.chat.Stream(ctx, messages, capability.Params{Temperature: 0.2})
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)
		sources := toSources(results)
		for tok := range tokens {
			if tok.Done {
				select {
				case out <- StreamEvent{Done: true, Sources: sources}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- StreamEvent{Token: tok.Text}:
			case <-ctx.Done():
				return
			}
		}
		out <- StreamEvent{Done: true, Sources: sources}
	}()
	return out, nil
}

// buildMessages assembles [SystemPrompt, ConversationContext?, UserTurn].
// The conversation turns (if any) sit between the system instructions and
// the current question, exactly as they were originally exchanged, so the
// model sees the running dialogue rather than a single synthesized turn.
func buildMessages(results []retriever.SearchResult, query string, convoCtx *convo.QueryContext) []capability.Message {
	context := assembleContext(results)
	userTurn := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", context, query)

	messages := make([]capability.Message, 0, len(convoCtx.Turns())+2)
	messages = append(messages, capability.Message{Role: capability.RoleSystem, Content: systemPrompt})
	messages = append(messages, convoCtx.Messages()...)
	messages = append(messages, capability.Message{Role: capability.RoleUser, Content: userTurn})
	return messages
}

// assembleContext concatenates sources labeled by citation key, so the
// model can quote file_path:chunk_index directly from the prompt. An
// empty result set still produces a prompt instructing the model that it
// has nothing to work with, rather than skipping the call.
func assembleContext(results []retriever.SearchResult) string {
	if len(results) == 0 {
		return "(no relevant context was found in this repository)"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "[%s:%d]\n%s\n\n", r.FilePath, r.ChunkIdx, r.Text)
	}
	return strings.TrimSpace(b.String())
}

func toSources(results []retriever.SearchResult) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		excerpt := r.Text
		if len(excerpt) > 280 {
			excerpt = excerpt[:280]
		}
		sources[i] = Source{
			ChunkID:  r.ChunkID,
			FilePath: r.FilePath,
			ChunkIdx: r.ChunkIdx,
			Score:    r.Score,
			Excerpt:  excerpt,
		}
	}
	return sources
}
