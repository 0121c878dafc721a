package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"aegis/internal/gateway"
	"aegis/internal/guardrails"
	"aegis/internal/tools"
	"aegis/pkg/errors"
)

const (
	fastModel     = "fast-model"
	guardModel    = "guard-model"
	powerfulModel = "powerful-model"
)

// scriptedPlanner serves generation for all roles and pops queued plan
// results for planning calls.
type scriptedPlanner struct {
	mu            sync.Mutex
	plans         []gateway.PlanResult
	repeatLast    bool
	planCalls     int
	generateCalls int
	responses     map[string]string
}

func newScriptedPlanner(plans ...gateway.PlanResult) *scriptedPlanner {
	return &scriptedPlanner{
		plans: plans,
		responses: map[string]string{
			fastModel:     `{"allow": true, "reason": "in scope"}`,
			guardModel:    "safe",
			powerfulModel: `{"approved": true, "reason": "grounded"}`,
		},
	}
}

func (p *scriptedPlanner) Name() string { return "scripted" }

func (p *scriptedPlanner) Generate(_ context.Context, req gateway.GenerateRequest) (*gateway.GenerateResponse, error) {
	p.mu.Lock()
	p.generateCalls++
	text, ok := p.responses[req.Model]
	p.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "no script for model %q", req.Model)
	}
	return &gateway.GenerateResponse{Text: text}, nil
}

func (p *scriptedPlanner) Plan(_ context.Context, _ gateway.PlanRequest) (*gateway.PlanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.planCalls++

	if len(p.plans) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidResponse, "plan queue exhausted")
	}
	next := p.plans[0]
	if !p.repeatLast || len(p.plans) > 1 {
		p.plans = p.plans[1:]
	}
	return &next, nil
}

func (p *scriptedPlanner) respond(model, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[model] = text
}

func finalAnswer(text string) gateway.PlanResult {
	return gateway.PlanResult{Kind: gateway.KindFinalAnswer, Text: text}
}

func toolCall(id, name string, args map[string]interface{}) gateway.PlanResult {
	return gateway.PlanResult{
		Kind: gateway.KindToolCall,
		Call: &gateway.ToolCall{ID: id, Name: name, Arguments: args},
	}
}

// testHarness bundles the controller with hooks the tests assert on.
type testHarness struct {
	controller *Controller
	planner    *scriptedPlanner
	trades     *int
}

func newHarness(planner *scriptedPlanner, maxToolRounds int) *testHarness {
	gw := gateway.New(gateway.WithTimeout(2*time.Second), gateway.WithMaxRetries(1))
	gw.RegisterRole(gateway.RoleFast, planner, fastModel, 0)
	gw.RegisterRole(gateway.RoleGuard, planner, guardModel, 0)
	gw.RegisterRole(gateway.RolePowerful, planner, powerfulModel, 0)

	trades := 0
	registry := tools.NewRegistry()
	research := tools.NewResearchTool("Data Center revenue grew 400 percent year over year.")
	registry.Register(tools.ResearchDescriptor(), research.Handle)
	registry.Register(tools.MarketDataDescriptor(), tools.MarketDataHandler)
	registry.Register(tools.TradeDescriptor(), func(ctx context.Context, args tools.Args) (string, error) {
		trades++
		return tools.ExecuteTradeHandler(ctx, args)
	})

	pipeline := guardrails.NewPipeline(gw, guardrails.Config{
		MaxOrderShares: 1000,
		StageTimeout:   time.Second,
		Ceiling:        2 * time.Second,
	})

	return &testHarness{
		controller: NewController(gw, registry, pipeline, maxToolRounds),
		planner:    planner,
		trades:     &trades,
	}
}

func tradeArgs() map[string]interface{} {
	return map[string]interface{}{
		"ticker":     "NVDA",
		"shares":     float64(100),
		"order_type": "BUY",
	}
}

func TestStep_FinalAnswer(t *testing.T) {
	h := newHarness(newScriptedPlanner(finalAnswer("NVDA closed down 1.25%.")), 8)
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "How did NVDA do today?")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if answer != "NVDA closed down 1.25%." {
		t.Errorf("Unexpected answer %q", answer)
	}

	history := conv.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(history))
	}
	if history[0].Role != gateway.RoleUser || history[1].Role != gateway.RoleAssistant {
		t.Errorf("Unexpected history roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestStep_ToolCallThenAnswer(t *testing.T) {
	h := newHarness(newScriptedPlanner(
		toolCall("call-1", tools.NameMarketData, map[string]interface{}{"ticker": "NVDA"}),
		finalAnswer("NVDA trades at 915.75."),
	), 8)
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "Get me an NVDA quote")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if answer != "NVDA trades at 915.75." {
		t.Errorf("Unexpected answer %q", answer)
	}

	// user, assistant(tool call), tool result, assistant(final)
	history := conv.History()
	if len(history) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(history))
	}
	if history[1].Role != gateway.RoleAssistant || len(history[1].ToolCalls) != 1 {
		t.Errorf("Expected the proposed tool call on the assistant message")
	}
	if history[2].Role != gateway.RoleTool || history[2].ToolName != tools.NameMarketData {
		t.Errorf("Expected a tool-result message, got %+v", history[2])
	}
	if !strings.Contains(history[2].Content, "915.75") {
		t.Errorf("Tool result missing quote data: %q", history[2].Content)
	}
}

func TestStep_ResearchQuery(t *testing.T) {
	planner := newScriptedPlanner(
		toolCall("call-1", tools.NameResearch, map[string]interface{}{"query": "revenue"}),
		finalAnswer("Data Center revenue grew 400 percent year over year."),
	)
	h := newHarness(planner, 8)
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "What was the revenue growth?")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !strings.Contains(answer, "revenue grew 400 percent") {
		t.Errorf("Unexpected answer %q", answer)
	}

	history := conv.History()
	if !strings.Contains(history[2].Content, "Found relevant section in 10-K report") {
		t.Errorf("Expected a research snippet in the tool result, got %q", history[2].Content)
	}
	// SAFE tools are auto-approved: no guardrail stage reaches a model
	if planner.generateCalls != 0 {
		t.Errorf("Expected zero guardrail model calls for a SAFE tool, got %d", planner.generateCalls)
	}
}

func TestStep_ApprovedTradeExecutes(t *testing.T) {
	h := newHarness(newScriptedPlanner(
		toolCall("call-1", tools.NameTrade, tradeArgs()),
		finalAnswer("Order placed."),
	), 8)
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "Buy 100 NVDA")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if answer != "Order placed." {
		t.Errorf("Unexpected answer %q", answer)
	}
	if *h.trades != 1 {
		t.Fatalf("Expected exactly one trade execution, got %d", *h.trades)
	}

	history := conv.History()
	if !strings.Contains(history[2].Content, "trade_") {
		t.Errorf("Expected a trade confirmation in the tool result, got %q", history[2].Content)
	}
}

func TestStep_DeniedTradeNotExecuted(t *testing.T) {
	planner := newScriptedPlanner(
		toolCall("call-1", tools.NameTrade, tradeArgs()),
		finalAnswer("I could not place the order."),
	)
	// The reasoning stage rejects the justification
	planner.respond(powerfulModel, `{"approved": false, "reason": "based on an unconfirmed rumor"}`)
	h := newHarness(planner, 8)
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "Sell everything, I heard a rumor")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if answer != "I could not place the order." {
		t.Errorf("Unexpected answer %q", answer)
	}
	if *h.trades != 0 {
		t.Fatalf("Denied trade must never execute, got %d executions", *h.trades)
	}

	history := conv.History()
	if !strings.Contains(history[2].Content, "DENIED by guardrail stage reasoning_check") {
		t.Errorf("Expected the denial in the tool result, got %q", history[2].Content)
	}
	if !strings.Contains(history[2].Content, "The action was not executed.") {
		t.Errorf("Expected the non-execution notice, got %q", history[2].Content)
	}
}

func TestStep_GuardrailFailureBlocksTrade(t *testing.T) {
	planner := newScriptedPlanner(
		toolCall("call-1", tools.NameTrade, tradeArgs()),
		finalAnswer("Something went wrong with the order."),
	)
	// Guard model unreachable: the pipeline must fail closed
	planner.mu.Lock()
	delete(planner.responses, guardModel)
	planner.mu.Unlock()
	h := newHarness(planner, 8)
	conv := NewConversation("c1")

	_, err := h.controller.Step(context.Background(), conv, "Buy 100 NVDA")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if *h.trades != 0 {
		t.Fatalf("Trade must not execute when a guardrail stage fails, got %d executions", *h.trades)
	}
}

func TestStep_UnknownTool(t *testing.T) {
	h := newHarness(newScriptedPlanner(
		toolCall("call-1", "transfer_funds", map[string]interface{}{"amount": 1}),
		finalAnswer("That tool is not available."),
	), 8)
	conv := NewConversation("c1")

	if _, err := h.controller.Step(context.Background(), conv, "Wire me money"); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	history := conv.History()
	if !strings.Contains(history[2].Content, `tool "transfer_funds" does not exist`) {
		t.Errorf("Expected an unknown-tool error in the tool result, got %q", history[2].Content)
	}
	if *h.trades != 0 {
		t.Errorf("Nothing should have executed, got %d trades", *h.trades)
	}
}

func TestStep_RoundBudgetExceeded(t *testing.T) {
	planner := newScriptedPlanner(toolCall("call-1", tools.NameMarketData, map[string]interface{}{"ticker": "NVDA"}))
	planner.repeatLast = true
	h := newHarness(planner, 3)
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "Keep checking the price")
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if !strings.Contains(answer, "allowed number of steps") {
		t.Errorf("Expected the budget answer, got %q", answer)
	}
	if planner.planCalls != 3 {
		t.Errorf("Expected exactly 3 planning calls, got %d", planner.planCalls)
	}
}

func TestStep_PlanningFailureYieldsApology(t *testing.T) {
	h := newHarness(newScriptedPlanner(), 8) // empty queue: planning errors
	conv := NewConversation("c1")

	answer, err := h.controller.Step(context.Background(), conv, "hello")
	if err != nil {
		t.Fatalf("Planning failure must not surface as an error, got %v", err)
	}
	if !strings.Contains(answer, "unable to complete") {
		t.Errorf("Expected the failure answer, got %q", answer)
	}

	// The failure answer still lands in the history
	history := conv.History()
	if history[len(history)-1].Role != gateway.RoleAssistant {
		t.Error("Expected the failure answer appended as an assistant message")
	}
}

func TestStep_CancelledContext(t *testing.T) {
	h := newHarness(newScriptedPlanner(finalAnswer("unused")), 8)
	conv := NewConversation("c1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.controller.Step(ctx, conv, "hello")
	if !errors.Is(err, errors.ErrCancelled) {
		t.Fatalf("Expected ErrCancelled, got %v", err)
	}
}
