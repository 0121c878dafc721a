package agent

import (
	"time"

	"aegis/internal/gateway"
)

// Message is a single entry in a conversation history.
type Message struct {
	Role      gateway.MessageRole
	Content   string
	ToolCalls []gateway.ToolCall
	ToolName  string // set on tool-result messages
	Timestamp time.Time
}

// Conversation is the agent's sole memory across turns: an ordered,
// append-only message sequence. Messages are never removed or reordered.
// A conversation is owned by exactly one in-flight step at a time.
type Conversation struct {
	id      string
	history []Message
}

// NewConversation creates an empty conversation.
func NewConversation(id string) *Conversation {
	return &Conversation{
		id:      id,
		history: make([]Message, 0, 16),
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// Len returns the number of messages in the history.
func (c *Conversation) Len() int { return len(c.history) }

// AddUserMessage appends a user message.
func (c *Conversation) AddUserMessage(content string) {
	c.history = append(c.history, Message{
		Role:      gateway.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// AddAssistantMessage appends an assistant message, optionally carrying the
// tool calls the model proposed.
func (c *Conversation) AddAssistantMessage(content string, toolCalls []gateway.ToolCall) {
	c.history = append(c.history, Message{
		Role:      gateway.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
		Timestamp: time.Now(),
	})
}

// AddToolResult appends a tool-result message. Denials travel through here
// too, so the model can explain or retry differently.
func (c *Conversation) AddToolResult(toolName, content string) {
	c.history = append(c.history, Message{
		Role:      gateway.RoleTool,
		Content:   content,
		ToolName:  toolName,
		Timestamp: time.Now(),
	})
}

// History returns the message sequence. Callers must not mutate it.
func (c *Conversation) History() []Message {
	return c.history
}

// PlanningHistory converts the history into the gateway's message form for
// planning and guardrail calls.
func (c *Conversation) PlanningHistory() []gateway.Message {
	messages := make([]gateway.Message, 0, len(c.history))
	for _, msg := range c.history {
		messages = append(messages, gateway.Message{
			Role:      msg.Role,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
			ToolName:  msg.ToolName,
		})
	}
	return messages
}
