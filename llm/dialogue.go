// Package llm builds the agent's prompts and talks to chat models.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/model"
)

// ChatClient is a chat-completion collaborator.
type ChatClient interface {
	Chat(ctx context.Context, messages []model.Utterance) (string, error)
}

// Apology is returned in place of a reply whenever the model cannot be used.
const Apology = "I'm sorry, I couldn't process that."

// LengthConstraint is appended to every prompt.
const LengthConstraint = "Please respond in no more than 20 words. Be concise and clear. Ask engaging questions that can be answered in a few words."

const (
	OpeningInstruction = `Greet the user, be concise and avoid special characters like *, &, %, etc.
and the questions can be about anything but they should be as concise as
possible. Ask moderate level questions that can be answered in a few words.
Do not ask questions that require long answers or explanations.`

	ClosingInstruction = "You are ending a conversation. Do not greet the user again. Give a response to the prompt by the user and after that thank the user for the conversation, and give a warm, friendly closing message. End the conversation with a positive note, and do not ask any questions. Do not ask any questions, just provide a warm closing message, after responding to what the user said."

	SummaryInstruction = "Give a brief summary of this conversation after analysing the conversation between the user and the bot in around 40 words"
)

// Dialogue turns conversation state into prompts. Every method returns a
// usable reply: when the model fails the reply is Apology and the error
// carries KindDialogueFailure.
type Dialogue struct {
	chat ChatClient
	log  zerolog.Logger
}

func NewDialogue(chat ChatClient, log zerolog.Logger) *Dialogue {
	return &Dialogue{chat: chat, log: log.With().Str("component", "dialogue").Logger()}
}

// BuildPrompt appends the length constraint to an instruction.
func BuildPrompt(instruction string) string {
	return instruction + "\n\n" + LengthConstraint
}

// Reply sends history plus the constrained prompt to the model.
func (d *Dialogue) Reply(ctx context.Context, history []model.Utterance, instruction string) (reply string, err error) {
	const op = "llm.Reply"
	defer func() {
		if p := recover(); p != nil {
			reply, err = Apology, model.NewError(model.KindDialogueFailure, op, fmt.Errorf("panic: %v", p))
		}
	}()

	messages := make([]model.Utterance, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, model.User(BuildPrompt(instruction)))

	reply, err = d.chat.Chat(ctx, messages)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		d.log.Warn().Err(err).Msg("dialogue service failed, answering with apology")
		return Apology, model.NewError(model.KindDialogueFailure, op, err)
	}
	return strings.TrimSpace(reply), nil
}

// Opening greets the user and asks a first, easy question.
func (d *Dialogue) Opening(ctx context.Context) (string, error) {
	return d.Reply(ctx, nil, OpeningInstruction)
}

// Turn answers the user's transcript in the context of the conversation.
func (d *Dialogue) Turn(ctx context.Context, history []model.Utterance, transcript string) (string, error) {
	return d.Reply(ctx, history, transcript)
}

// Closing responds to the last input and says goodbye without questions.
func (d *Dialogue) Closing(ctx context.Context, history []model.Utterance) (string, error) {
	return d.Reply(ctx, history, ClosingInstruction)
}

// Summary condenses the whole conversation. The transcript goes into the
// prompt itself and the model sees no prior history.
func (d *Dialogue) Summary(ctx context.Context, history []model.Utterance) (string, error) {
	return d.Reply(ctx, nil, SummaryPrompt(history))
}

// SummaryPrompt renders the summary instruction followed by one
// "role: content" line per utterance.
func SummaryPrompt(history []model.Utterance) string {
	lines := make([]string, 0, len(history))
	for _, u := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", u.Role, u.Content))
	}
	return SummaryInstruction + "\n" + strings.Join(lines, "\n")
}
