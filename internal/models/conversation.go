package models

// maxHistory bounds the per-session message histories.
const maxHistory = 10

// ConversationState holds bounded per-session conversation history and
// feedback-loop bookkeeping. Mutated every turn.
type ConversationState struct {
	UserMessageHistory   []string       `json:"user_message_history"`
	RogerResponseHistory []string       `json:"roger_response_history"`
	FeedbackLoopDetected bool           `json:"feedback_loop_detected"`
	RepetitionCount      map[string]int `json:"repetition_count"`
}

// NewConversationState creates an empty conversation state.
func NewConversationState() *ConversationState {
	return &ConversationState{
		RepetitionCount: make(map[string]int),
	}
}

// RecordUserMessage appends a user message, keeping the last 10.
func (c *ConversationState) RecordUserMessage(text string) {
	c.UserMessageHistory = appendBounded(c.UserMessageHistory, text, maxHistory)
}

// RecordResponse appends an assistant response, keeping the last 10.
func (c *ConversationState) RecordResponse(text string) {
	c.RogerResponseHistory = appendBounded(c.RogerResponseHistory, text, maxHistory)
}

// LastResponses returns up to n most recent assistant responses,
// oldest first.
func (c *ConversationState) LastResponses(n int) []string {
	if len(c.RogerResponseHistory) <= n {
		return c.RogerResponseHistory
	}
	return c.RogerResponseHistory[len(c.RogerResponseHistory)-n:]
}

func appendBounded(history []string, item string, limit int) []string {
	history = append(history, item)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
