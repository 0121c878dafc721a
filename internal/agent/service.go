package agent

import (
	"context"
	"sync"

	"aegis/pkg/errors"
	"aegis/pkg/logger"
)

// Service is the single inbound entry point: a user utterance plus a
// conversation identifier in, the assistant's final text for the turn out.
// Conversations run independently; within one conversation, turns are
// strictly serialized.
type Service struct {
	controller *Controller

	mu            sync.Mutex
	conversations map[string]*Conversation
	inFlight      map[string]bool

	log *logger.Logger
}

// NewService creates the conversation service.
func NewService(controller *Controller) *Service {
	return &Service{
		controller:    controller,
		conversations: make(map[string]*Conversation),
		inFlight:      make(map[string]bool),
		log:           logger.Get().With("component", "agent_service"),
	}
}

// HandleMessage runs one turn for the identified conversation. A second call
// for a conversation whose turn is still in flight is rejected; the history
// has exactly one owner at a time.
func (s *Service) HandleMessage(ctx context.Context, conversationID, text string) (string, error) {
	conv, err := s.checkout(conversationID)
	if err != nil {
		return "", err
	}
	defer s.release(conversationID)

	return s.controller.Step(ctx, conv, text)
}

func (s *Service) checkout(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[id] {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "conversation %s already has a turn in flight", id)
	}

	conv, ok := s.conversations[id]
	if !ok {
		conv = NewConversation(id)
		s.conversations[id] = conv
		s.log.Infof("Started conversation %s", id)
	}

	s.inFlight[id] = true
	return conv, nil
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}
