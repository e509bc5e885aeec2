package constant

// Chat message roles as stored in chat_messages.role
const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
)

const DefaultSessionTitle = "Unnamed session"

// Turn intents as reported in the send-chat response.
const (
	IntentOrdinalReference = "ordinal_reference"
	IntentLabelReference   = "label_reference"
	IntentNewSearch        = "new_search"
	IntentClarify          = "clarify"
)

// SessionTitleMaxLength bounds the title derived from the first user message.
const SessionTitleMaxLength = 80
