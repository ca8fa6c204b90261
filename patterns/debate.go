package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

// Utterance is one debater's contribution within one round.
type Utterance struct {
	Round    int
	Agent    string
	Text     string
	Duration time.Duration
}

// Debate runs Rounds rounds over an ordered list of debaters on Topic.
// Within a round, each debater speaks in declared order; the last debater
// in a round receives an aggregate of every prior speaker's argument that
// round, every other debater receives only the immediately prior speaker's
// argument. Between rounds (except after the last), context resets to a
// "continue the debate" prompt.
type Debate struct {
	Runtime  *agent.Runtime
	Debaters []*agent.Agent
	Topic    string
	Rounds   int
	UserID   string
}

// Execute implements Executor. The FinalResult is the last utterance's
// text; the full transcript is available via Meta["utterances"].
func (d *Debate) Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error) {
	rounds := d.Rounds
	if rounds < 1 {
		rounds = 1
	}
	result := &Result{
		Pattern:      "debate",
		AgentResults: make(map[string]string, len(d.Debaters)),
		Durations:    make(map[string]time.Duration, len(d.Debaters)),
		Meta:         make(map[string]any),
	}

	var utterances []Utterance
	// roundRecorder's History accumulates this round's utterances, speaker
	// by speaker, purely so ContextSummary can render the aggregate the
	// round's last debater receives; it never itself speaks.
	roundRecorder := &agent.Agent{Name: "round-recorder"}

	for r := 1; r <= rounds; r++ {
		roundRecorder.History = roundRecorder.History[:0]
		for i, deb := range d.Debaters {
			isLast := i == len(d.Debaters)-1
			msg := roundMessage(r, i, isLast, d.Topic, utterances, roundRecorder)

			emitStatus(onEvent, deb.Name, events.StatusExecuting)
			start := time.Now()
			out, err := d.Runtime.SendWithEvents(ctx, deb, msg, "", d.UserID, chunkForwarder(onEvent))
			duration := time.Since(start)
			if err != nil {
				return result, fmt.Errorf("debate: round %d agent %s: %w", r, deb.Name, err)
			}
			emitStatusWithDuration(onEvent, deb.Name, events.StatusCompleted, duration)

			utterances = append(utterances, Utterance{Round: r, Agent: deb.Name, Text: out, Duration: duration})
			roundRecorder.AddToHistory(deb.Name, out)
			result.AgentResults[deb.Name] = out
			result.Durations[deb.Name] += duration
		}
	}

	result.Meta["utterances"] = utterances
	if len(utterances) > 0 {
		result.FinalResult = utterances[len(utterances)-1].Text
	}
	return result, nil
}

// roundMessage builds the message a debater receives. speakerIdx is the
// debater's position within the round; isLast marks the round's final
// speaker, who receives every prior argument spoken this round (via
// recorder's ContextSummary) instead of just the immediately prior one.
func roundMessage(round, speakerIdx int, isLast bool, topic string, utterances []Utterance, recorder *agent.Agent) string {
	if round == 1 && speakerIdx == 0 {
		return fmt.Sprintf("Initial topic: %s. Present your opening argument.", topic)
	}
	if round > 1 && speakerIdx == 0 {
		return fmt.Sprintf("Continue the debate on: %s. Build on previous arguments.", topic)
	}
	if isLast {
		return fmt.Sprintf("Respond to the arguments so far:\n%s", recorder.ContextSummary(speakerIdx))
	}
	return fmt.Sprintf("Respond to %s", utterances[len(utterances)-1].Text)
}
