// Package session implements the message-granular, tool-enabled provider
// backend. Unlike providers/streaming, it surfaces tool_call events and does
// not stream token-level deltas: a single chunk event carries the full
// assistant message once the call returns.
//
// Tool execution itself (file-editor, bash, MCP) is an external collaborator;
// this backend only surfaces the model's tool-call requests, it never
// executes them or feeds results back within a single Invoke call.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentmesh/orchestrator/provider"
)

// genericWorkspaceTool is the tool surface advertised to the model when
// tools are enabled. Concrete file-editor/bash/MCP execution is delegated to
// collaborators outside the core; this declaration only lets the model
// request the capability so the runtime can route the request onward.
var genericWorkspaceTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        "workspace_operation",
		Description: "Read, write, or edit a file, or run a shell command in the agent's workspace.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{"type": "string", "enum": []string{"read_file", "write_file", "edit_file", "run_command"}},
				"path":      map[string]any{"type": "string"},
				"content":   map[string]any{"type": "string"},
				"command":   map[string]any{"type": "string"},
			},
			"required": []string{"operation"},
		},
	},
}

// ChatClient captures the subset of the go-openai client used by the
// backend, so tests can supply a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements provider.Backend on top of a message-granular,
// tool-capable chat completion API.
type Client struct {
	chat      ChatClient
	model     string
	maxTokens int
}

// New builds a session backend from a ChatClient.
func New(chat ChatClient, model string, maxTokens int) (*Client, error) {
	if chat == nil {
		return nil, errors.New("session: chat client is required")
	}
	if model == "" {
		return nil, errors.New("session: model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{chat: chat, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a backend using the default go-openai HTTP
// client, reading the API key from the caller.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("session: api key is required")
	}
	return New(openai.NewClient(apiKey), model, maxTokens)
}

// Invoke implements provider.Backend. When toolsEnabled is true the request
// advertises genericWorkspaceTool and any tool calls the model requests are
// surfaced as provider.EventToolCall before the terminal event.
func (c *Client) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []openai.ChatCompletionMessage{},
	}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})
	if toolsEnabled {
		req.Tools = []openai.Tool{genericWorkspaceTool}
	}

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", provider.NewError("session", "invoke", provider.ErrorKindFatal, "empty response", nil)
	}
	msg := resp.Choices[0].Message

	if onEvent != nil && msg.Content != "" {
		onEvent(provider.Event{Kind: provider.EventChunk, Chunk: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		var input any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		}
		if onEvent != nil {
			onEvent(provider.Event{Kind: provider.EventToolCall, ToolName: tc.Function.Name, ToolInput: input})
		}
	}

	final := provider.FinalResult{
		FinalText:    msg.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if onEvent != nil {
		onEvent(provider.Event{Kind: provider.EventFinal, Final: &final})
	}
	return final.FinalText, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return provider.NewError("session", "invoke", provider.ErrorKindAuth, "authentication failed", err)
		case 429:
			return provider.NewError("session", "invoke", provider.ErrorKindRateLimited, "rate limited", err)
		case 500, 502, 503, 504:
			return provider.NewError("session", "invoke", provider.ErrorKindTransient, "upstream unavailable", err)
		default:
			return provider.NewError("session", "invoke", provider.ErrorKindFatal, fmt.Sprintf("request failed: %s", apiErr.Message), err)
		}
	}
	if strings.Contains(err.Error(), "context deadline") || strings.Contains(err.Error(), "connection") {
		return provider.NewError("session", "invoke", provider.ErrorKindTransient, "transport failure", err)
	}
	return provider.NewError("session", "invoke", provider.ErrorKindFatal, err.Error(), err)
}
