package types

import "github.com/mrsingh-rishi/voice-agent/model"

type GreetingResponse struct {
	Response string `json:"response"`
}

type SummaryResponse struct {
	Response     string            `json:"response"`
	IsSummary    bool              `json:"is_summary"`
	Conversation []model.Utterance `json:"conversation"`
}

// TurnResponse answers one processed recording. UserInput is nil when the
// session was already exhausted and no audio was processed.
type TurnResponse struct {
	UserInput    *string           `json:"user_input"`
	Response     string            `json:"response"`
	Iteration    int               `json:"iteration"`
	IsSummary    bool              `json:"is_summary"`
	Conversation []model.Utterance `json:"conversation"`
}

type ErrorResponse struct {
	Error string     `json:"error"`
	Kind  model.Kind `json:"kind,omitempty"`
}

type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
	Limit     int    `json:"limit"`
}

// SpeechEvent is a control message on the speech websocket.
type SpeechEvent struct {
	Event string      `json:"event"`
	Mark  *SpeechMark `json:"mark,omitempty"`
	Error string      `json:"error,omitempty"`
	Kind  model.Kind  `json:"kind,omitempty"`
}

type SpeechMark struct {
	Name string `json:"name"`
}
