package chat

import (
	"github.com/google/uuid"
)

// Conversation is an immutable transcript snapshot
type Conversation struct {
	ID       string
	Title    string
	Model    string
	Messages []Message
}

func NewConversation(id, model string) Conversation {
	return Conversation{
		ID:       id,
		Model:    model,
		Messages: make([]Message, 0),
	}
}

// ResolveConversationID picks the explicit ID, then the remembered one,
// then a fresh UUID
func ResolveConversationID(explicit, remembered string) string {
	if explicit != "" {
		return explicit
	}
	if remembered != "" {
		return remembered
	}
	return uuid.NewString()
}

func AddMessage(conv Conversation, msg Message) Conversation {
	messages := make([]Message, len(conv.Messages)+1)
	copy(messages, conv.Messages)
	messages[len(conv.Messages)] = msg

	conv.Messages = messages
	return conv
}

// ReplaceContent returns conv with the content of message id replaced
func ReplaceContent(conv Conversation, id, content string) Conversation {
	messages := make([]Message, len(conv.Messages))
	copy(messages, conv.Messages)
	for i := range messages {
		if messages[i].ID == id {
			messages[i] = messages[i].WithContent(content)
		}
	}

	conv.Messages = messages
	return conv
}

func GetMessages(conv Conversation) []Message {
	result := make([]Message, len(conv.Messages))
	copy(result, conv.Messages)
	return result
}

func GetMessageCount(conv Conversation) int {
	return len(conv.Messages)
}

func GetMessage(conv Conversation, id string) (Message, bool) {
	for _, msg := range conv.Messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return Message{}, false
}

func GetLastMessage(conv Conversation) (Message, bool) {
	if len(conv.Messages) == 0 {
		return Message{}, false
	}
	return conv.Messages[len(conv.Messages)-1], true
}

func GetLastAssistantMessage(conv Conversation) (Message, bool) {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.IsAssistant() {
			return msg, true
		}
	}
	return Message{}, false
}

func IsEmpty(conv Conversation) bool {
	return len(conv.Messages) == 0
}
