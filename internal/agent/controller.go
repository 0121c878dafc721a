package agent

import (
	"context"
	"fmt"

	"aegis/internal/gateway"
	"aegis/internal/guardrails"
	"aegis/internal/metrics"
	"aegis/internal/tools"
	"aegis/pkg/errors"
	"aegis/pkg/logger"
)

const systemPrompt = "You are a careful financial research assistant. " +
	"You answer questions about companies using the available research and " +
	"market-data tools, and you may propose trades only when the user asks " +
	"for one and the decision is supported by verified information. " +
	"Cite the data you relied on in your answers."

const failureAnswer = "I was unable to complete that request. Please try again."

const budgetAnswer = "I was unable to complete that request within the " +
	"allowed number of steps. Please simplify it and try again."

// Controller runs the conversation loop for one turn: plan, gate, execute,
// repeat until the model produces a final answer or the round-trip budget
// runs out.
type Controller struct {
	gw            *gateway.Gateway
	registry      *tools.Registry
	pipeline      *guardrails.Pipeline
	maxToolRounds int
	log           *logger.Logger
}

// NewController wires the controller to its collaborators.
func NewController(gw *gateway.Gateway, registry *tools.Registry, pipeline *guardrails.Pipeline, maxToolRounds int) *Controller {
	if maxToolRounds <= 0 {
		maxToolRounds = 8
	}
	return &Controller{
		gw:            gw,
		registry:      registry,
		pipeline:      pipeline,
		maxToolRounds: maxToolRounds,
		log:           logger.Get().With("component", "controller"),
	}
}

// Step processes one user turn and returns the assistant's final text. The
// user always receives natural-language output, even when an internal call
// fails; real errors are logged and tracked, not surfaced raw.
func (c *Controller) Step(ctx context.Context, conv *Conversation, userMessage string) (string, error) {
	if userMessage != "" {
		conv.AddUserMessage(userMessage)
	}

	for round := 1; round <= c.maxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(errors.ErrCancelled, "turn cancelled")
		}

		result, err := c.gw.Plan(ctx, gateway.PlanRequest{
			System:      systemPrompt,
			History:     conv.PlanningHistory(),
			Tools:       c.registry.Definitions(),
			Temperature: 0.7,
			MaxTokens:   2048,
		})
		if err != nil {
			if errors.Is(err, errors.ErrCancelled) || ctx.Err() != nil {
				return "", errors.Wrap(errors.ErrCancelled, "turn cancelled")
			}
			c.log.ErrorWithContext(ctx, errors.Wrap(err, "planning call failed"), map[string]string{
				"conversation": conv.ID(),
			})
			metrics.TurnRoundTrips.WithLabelValues("failed").Observe(float64(round))
			conv.AddAssistantMessage(failureAnswer, nil)
			return failureAnswer, nil
		}

		switch result.Kind {
		case gateway.KindFinalAnswer:
			conv.AddAssistantMessage(result.Text, nil)
			metrics.TurnRoundTrips.WithLabelValues("answered").Observe(float64(round))
			return result.Text, nil

		case gateway.KindToolCall:
			call := result.Call
			c.log.Infof("Round %d: model proposed %s(%s)", round, call.Name, call.ID)
			conv.AddAssistantMessage("", []gateway.ToolCall{*call})
			conv.AddToolResult(call.Name, c.dispatch(ctx, conv, call))

		default:
			c.log.Errorf("Planning returned unknown result kind %q", result.Kind)
			conv.AddAssistantMessage(failureAnswer, nil)
			return failureAnswer, nil
		}
	}

	metrics.TurnRoundTrips.WithLabelValues("budget_exceeded").Observe(float64(c.maxToolRounds))
	c.log.Warnf("Conversation %s exceeded %d tool rounds", conv.ID(), c.maxToolRounds)
	conv.AddAssistantMessage(budgetAnswer, nil)
	return budgetAnswer, nil
}

// dispatch submits a proposed tool call to the guardrail pipeline and, on
// allow, executes it. The returned string becomes the tool-result message;
// denials and tool failures are reported there so the model can adapt.
func (c *Controller) dispatch(ctx context.Context, conv *Conversation, call *gateway.ToolCall) string {
	desc, err := c.registry.Resolve(call.Name)
	if err != nil {
		c.log.Warnf("Model requested unknown tool %q", call.Name)
		return fmt.Sprintf("ERROR: tool %q does not exist.", call.Name)
	}

	verdict := c.pipeline.Evaluate(ctx, &guardrails.Request{
		CorrelationID: call.ID,
		Tool:          desc,
		Arguments:     call.Arguments,
		History:       conv.PlanningHistory(),
	})
	if !verdict.Allowed {
		return fmt.Sprintf("DENIED by guardrail stage %s: %s The action was not executed.",
			verdict.Stage, verdict.Reason)
	}

	// Cancellation observed after the verdict still prevents execution of
	// anything with external side effects
	if err := ctx.Err(); err != nil {
		return "ERROR: the request was cancelled before the tool could run."
	}

	result, err := c.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		c.log.Warnf("Tool %s failed: %v", call.Name, err)
		return fmt.Sprintf("ERROR: %v", err)
	}
	return result
}
