package conversation

import "context"

// Message is one prior utterance handed to the generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the generator's next assistant utterance. EndCall is set when the
// model signaled the conversation is over; Text is already stripped of the
// marker.
type Reply struct {
	Text       string
	TokensUsed int64
	EndCall    bool
}

// Generator produces the assistant's next line from the system prompt and
// the conversation so far.
type Generator interface {
	Reply(ctx context.Context, systemPrompt string, history []Message) (Reply, error)
}
