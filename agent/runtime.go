package agent

import (
	"context"
	"fmt"

	"github.com/agentmesh/orchestrator/provider"
	"github.com/agentmesh/orchestrator/telemetry"
)

// AgentEvent tags a provider.Event with the name of the agent that produced
// it. The Agent Runtime is the single place this tagging happens; callers
// never maintain a shared "current agent" cursor, so events from
// interleaved concurrent agents can never be misattributed.
type AgentEvent struct {
	Agent string
	provider.Event
}

// OnAgentEvent receives agent-tagged provider events as an Agent Runtime
// call is in flight.
type OnAgentEvent func(AgentEvent)

// Runtime wraps the "agent speaks once" operation: it selects a provider
// backend, threads context, and maintains append-only agent history.
type Runtime struct {
	Streaming   provider.Backend
	Session     provider.Backend
	Credentials provider.CredentialStore
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Tracer      telemetry.Tracer
}

// NewRuntime constructs a Runtime from its collaborators. Logger may be nil,
// in which case a no-op logger is used. Metrics and Tracer default to
// no-ops the same way when constructed via NewRuntimeWithTelemetry; plain
// NewRuntime callers get no-ops for both.
func NewRuntime(streaming, session provider.Backend, creds provider.CredentialStore, logger telemetry.Logger) *Runtime {
	return NewRuntimeWithTelemetry(streaming, session, creds, logger, nil, nil)
}

// NewRuntimeWithTelemetry constructs a Runtime with explicit Metrics/Tracer
// collaborators. Any of logger, metrics, or tracer may be nil, in which
// case the corresponding no-op implementation is used.
func NewRuntimeWithTelemetry(streaming, session provider.Backend, creds provider.CredentialStore, logger telemetry.Logger, metrics telemetry.Metrics, tracer telemetry.Tracer) *Runtime {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Runtime{Streaming: streaming, Session: session, Credentials: creds, Logger: logger, Metrics: metrics, Tracer: tracer}
}

// Send sends a single message through ag, selecting the provider backend
// using SelectBackend and appending the exchange to ag's history on
// success. It forwards no events; SendWithEvents does.
//
// When contextText is non-empty it is prepended to message as
// "Context: {contextText}\n\nTask: {message}" so the agent understands the
// supplied text is its input, not a question addressed to it.
func (rt *Runtime) Send(ctx context.Context, ag *Agent, message, contextText, userID string) (string, error) {
	return rt.SendWithEvents(ctx, ag, message, contextText, userID, nil)
}

// SendWithEvents is Send's event-forwarding counterpart, used by pattern
// executors that need to surface chunk/tool-call events live. It performs
// the same backend selection and history bookkeeping as Send.
func (rt *Runtime) SendWithEvents(ctx context.Context, ag *Agent, message, contextText, userID string, onEvent OnAgentEvent) (string, error) {
	full := message
	if contextText != "" {
		full = fmt.Sprintf("Context: %s\n\nTask: %s", contextText, message)
	}

	cred, err := rt.Credentials.Resolve(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("agent %s: resolving credentials: %w", ag.Name, err)
	}
	streamingAvailable := cred.Kind != provider.CredentialSessionOnly
	kind := provider.SelectBackend(streamingAvailable, ag.ToolsEnabled)

	backend := rt.Streaming
	if kind == provider.KindSession {
		backend = rt.Session
	}
	if backend == nil {
		return "", fmt.Errorf("agent %s: no %s backend configured", ag.Name, kind)
	}

	return rt.sendWith(ctx, ag, full, backend, onEvent)
}

func (rt *Runtime) sendWith(ctx context.Context, ag *Agent, full string, backend provider.Backend, onEvent OnAgentEvent) (string, error) {
	ctx, span := rt.Tracer.Start(ctx, "agent.call")
	span.AddEvent("invoke", "agent", ag.Name)
	defer span.End()

	reply, err := backend.Invoke(ctx, ag.SystemPrompt, full, ag.ToolsEnabled, func(ev provider.Event) {
		if ev.Kind == provider.EventFinal && ev.Final != nil {
			rt.Metrics.IncCounter("orchestrator.tokens_input", float64(ev.Final.InputTokens), "agent", ag.Name)
			rt.Metrics.IncCounter("orchestrator.tokens_output", float64(ev.Final.OutputTokens), "agent", ag.Name)
		}
		if onEvent != nil {
			onEvent(AgentEvent{Agent: ag.Name, Event: ev})
		}
	})
	if err != nil {
		rt.Metrics.IncCounter("orchestrator.agent_failures", 1, "agent", ag.Name)
		span.RecordError(err)
		rt.Logger.Error(ctx, "agent call failed", "agent", ag.Name, "error", err)
		return "", fmt.Errorf("agent %s: %w", ag.Name, err)
	}
	rt.Metrics.IncCounter("orchestrator.agent_calls", 1, "agent", ag.Name)
	ag.AddToHistory("user", full)
	ag.AddToHistory("assistant", reply)
	return reply, nil
}
