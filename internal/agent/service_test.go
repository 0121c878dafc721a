package agent

import (
	"context"
	"sync"
	"testing"

	"aegis/internal/gateway"
	"aegis/pkg/errors"
)

// blockingPlanner parks planning calls until released, so tests can hold a
// turn in flight.
type blockingPlanner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPlanner() *blockingPlanner {
	return &blockingPlanner{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingPlanner) Name() string { return "blocking" }

func (p *blockingPlanner) Generate(_ context.Context, _ gateway.GenerateRequest) (*gateway.GenerateResponse, error) {
	return &gateway.GenerateResponse{Text: "safe"}, nil
}

func (p *blockingPlanner) Plan(ctx context.Context, _ gateway.PlanRequest) (*gateway.PlanResult, error) {
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &gateway.PlanResult{Kind: gateway.KindFinalAnswer, Text: "done"}, nil
}

func TestService_TurnsSerializedPerConversation(t *testing.T) {
	planner := newBlockingPlanner()
	h := newHarness(newScriptedPlanner(), 8)
	// Swap in a gateway bound to the blocking planner
	gw := gateway.New()
	gw.RegisterRole(gateway.RolePowerful, planner, powerfulModel, 0)
	h.controller.gw = gw

	service := NewService(h.controller)

	done := make(chan error, 1)
	go func() {
		_, err := service.HandleMessage(context.Background(), "c1", "first")
		done <- err
	}()

	<-planner.started

	// Second turn for the same conversation while the first is in flight
	_, err := service.HandleMessage(context.Background(), "c1", "second")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("Expected the overlapping turn to be rejected, got %v", err)
	}

	close(planner.release)
	if err := <-done; err != nil {
		t.Fatalf("First turn failed: %v", err)
	}

	// The conversation is free again once the turn completes
	if _, err := service.HandleMessage(context.Background(), "c1", "third"); err != nil {
		t.Fatalf("Turn after release failed: %v", err)
	}
}

func TestService_ConversationsAreIndependent(t *testing.T) {
	planner := newBlockingPlanner()
	h := newHarness(newScriptedPlanner(), 8)
	gw := gateway.New()
	gw.RegisterRole(gateway.RolePowerful, planner, powerfulModel, 0)
	h.controller.gw = gw

	service := NewService(h.controller)

	done := make(chan error, 1)
	go func() {
		_, err := service.HandleMessage(context.Background(), "c1", "first")
		done <- err
	}()

	<-planner.started
	close(planner.release)

	// A different conversation proceeds regardless of c1's turn
	answer, err := service.HandleMessage(context.Background(), "c2", "hello")
	if err != nil {
		t.Fatalf("Independent conversation blocked: %v", err)
	}
	if answer != "done" {
		t.Errorf("Unexpected answer %q", answer)
	}

	if err := <-done; err != nil {
		t.Fatalf("First turn failed: %v", err)
	}
}

func TestService_HistoryPersistsAcrossTurns(t *testing.T) {
	h := newHarness(newScriptedPlanner(
		finalAnswer("first answer"),
		finalAnswer("second answer"),
	), 8)
	service := NewService(h.controller)

	if _, err := service.HandleMessage(context.Background(), "c1", "first question"); err != nil {
		t.Fatalf("First turn failed: %v", err)
	}
	if _, err := service.HandleMessage(context.Background(), "c1", "second question"); err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}

	service.mu.Lock()
	conv := service.conversations["c1"]
	service.mu.Unlock()

	// Two user messages and two assistant answers, in order
	if conv.Len() != 4 {
		t.Fatalf("Expected 4 messages across turns, got %d", conv.Len())
	}
	history := conv.History()
	if history[0].Content != "first question" || history[2].Content != "second question" {
		t.Error("User messages out of order across turns")
	}
}
