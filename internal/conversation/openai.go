package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// endCallMarker is the token the model is instructed to emit when the
// conversation has reached its natural end.
const endCallMarker = "[END_CALL]"

const voiceStyleInstruction = `
You are speaking on a live phone call. Keep every reply short and natural,
one or two sentences, no lists or markdown. When the conversation has
reached its natural end, finish your reply with ` + endCallMarker + `.`

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *OpenAIGenerator) Reply(ctx context.Context, systemPrompt string, history []Message) (Reply, error) {
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{
		Role:    "system",
		Content: strings.TrimSpace(systemPrompt) + "\n" + strings.TrimSpace(voiceStyleInstruction),
	})
	messages = append(messages, history...)

	payload, err := json.Marshal(chatRequest{Model: g.model, Messages: messages})
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: generate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Reply{}, fmt.Errorf("conversation: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return Reply{}, fmt.Errorf("conversation: generation failed (%d): %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return Reply{}, fmt.Errorf("conversation: response has no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	endCall := false
	if strings.Contains(text, endCallMarker) {
		endCall = true
		text = strings.TrimSpace(strings.ReplaceAll(text, endCallMarker, ""))
	}

	return Reply{Text: text, TokensUsed: parsed.Usage.TotalTokens, EndCall: endCall}, nil
}
