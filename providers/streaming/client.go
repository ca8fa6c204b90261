// Package streaming implements the token-level streaming provider backend
// over the Anthropic Messages API. It never surfaces tool-call events: tools
// are the session backend's concern (see providers/session).
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentmesh/orchestrator/provider"
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// backend, so tests can pass a fake in place of *sdk.MessageService.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements provider.Backend on top of Anthropic's streaming
// Messages API.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds a streaming backend from an Anthropic Messages client.
func New(msg MessagesClient, model string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("streaming: messages client is required")
	}
	if model == "" {
		return nil, errors.New("streaming: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a backend using the default Anthropic HTTP
// client authenticated with apiKey, which must be non-empty; other client
// defaults come from the environment via sdk.NewClient.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("streaming: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, model, maxTokens)
}

// Invoke implements provider.Backend. toolsEnabled is accepted for interface
// conformance but is never honored: the streaming backend does not declare
// tools and never emits provider.EventToolCall.
func (c *Client) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userMessage)),
		},
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}

	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return "", classify(err)
	}
	defer stream.Close()

	var final strings.Builder
	var usage provider.FinalResult

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				final.WriteString(delta.Text)
				if onEvent != nil {
					onEvent(provider.Event{Kind: provider.EventChunk, Chunk: delta.Text})
				}
			}
		case sdk.MessageDeltaEvent:
			usage.InputTokens += int(ev.Usage.InputTokens)
			usage.OutputTokens += int(ev.Usage.OutputTokens)
			usage.CacheReadTokens += int(ev.Usage.CacheReadInputTokens)
			usage.CacheCreateTokens += int(ev.Usage.CacheCreationInputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return "", classify(err)
	}

	usage.FinalText = final.String()
	if onEvent != nil {
		onEvent(provider.Event{Kind: provider.EventFinal, Final: &usage})
	}
	return usage.FinalText, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "authentication"):
		return provider.NewError("streaming", "invoke", provider.ErrorKindAuth, "authentication failed", err)
	case strings.Contains(msg, "429"):
		return provider.NewError("streaming", "invoke", provider.ErrorKindRateLimited, "rate limited", err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return provider.NewError("streaming", "invoke", provider.ErrorKindTransient, "upstream unavailable", err)
	default:
		return provider.NewError("streaming", "invoke", provider.ErrorKindFatal, fmt.Sprintf("request failed: %s", msg), err)
	}
}
