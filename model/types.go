package model

// Role identifies who produced an utterance.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one entry of the conversation history.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User builds a user utterance.
func User(content string) Utterance {
	return Utterance{Role: RoleUser, Content: content}
}

// Assistant builds an assistant utterance.
func Assistant(content string) Utterance {
	return Utterance{Role: RoleAssistant, Content: content}
}

// AudioBlob is an uploaded recording as received from the client.
type AudioBlob struct {
	Data        []byte
	Filename    string // client supplied name, used as a format hint
	ContentType string // declared MIME type, used as a format hint
}
