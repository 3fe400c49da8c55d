package chat

import "chat-relay/pkg/models"

const (
	// MaxResponseSegments caps how many continuation calls a single turn
	// may issue after its initial provider call.
	MaxResponseSegments = 2

	// MaxTokens is the output ceiling requested from providers; replies
	// that hit it come back with the "length" finish reason.
	MaxTokens = 8192

	// ContinuePrompt is the fixed directive appended when a truncated
	// reply is continued.
	ContinuePrompt = "Continue your prior response. IMPORTANT: Immediately begin from where you left off without any interruptions. Do not repeat any content."
)

// Conversation is the ordered, append-only message list for one chat turn.
// It is owned by the single controller invocation driving that turn.
type Conversation struct {
	messages []models.Message
}

// NewConversation copies the caller's messages so later appends never alias
// the request payload.
func NewConversation(messages []models.Message) *Conversation {
	copied := make([]models.Message, len(messages))
	copy(copied, messages)
	return &Conversation{messages: copied}
}

// Messages returns the current message list.
func (c *Conversation) Messages() []models.Message {
	return c.messages
}

// AppendContinuation records the partial assistant output and the fixed
// continuation directive, in that order. These are the only two entries a
// continuation adds.
func (c *Conversation) AppendContinuation(partial string) {
	c.messages = append(c.messages,
		models.Message{Role: models.RoleAssistant, Content: partial},
		models.Message{Role: models.RoleUser, Content: ContinuePrompt},
	)
}
