package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIGeneratorReply(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "Sure, Tuesday works."}}],
			"usage": {"total_tokens": 142}
		}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL, "sk-test", "gpt-4o-mini")
	reply, err := g.Reply(context.Background(), "You schedule appointments.", []Message{
		{Role: "assistant", Content: "Hello!"},
		{Role: "user", Content: "Can we do Tuesday?"},
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text != "Sure, Tuesday works." || reply.TokensUsed != 142 || reply.EndCall {
		t.Fatalf("reply = %+v", reply)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth = %s", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("model = %s", gotReq.Model)
	}
	if len(gotReq.Messages) != 3 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "You schedule appointments.") {
		t.Fatalf("system prompt missing: %s", gotReq.Messages[0].Content)
	}
	if !strings.Contains(gotReq.Messages[0].Content, endCallMarker) {
		t.Fatalf("end-call instruction missing: %s", gotReq.Messages[0].Content)
	}
}

func TestOpenAIGeneratorDetectsEndMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"message": {"content": "Great, you're all set. Goodbye! [END_CALL]"}}],
			"usage": {"total_tokens": 64}
		}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL, "sk-test", "gpt-4o-mini")
	reply, err := g.Reply(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !reply.EndCall {
		t.Fatal("end marker not detected")
	}
	if strings.Contains(reply.Text, endCallMarker) {
		t.Fatalf("marker not stripped: %q", reply.Text)
	}
	if reply.Text != "Great, you're all set. Goodbye!" {
		t.Fatalf("text = %q", reply.Text)
	}
}

func TestOpenAIGeneratorSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL, "sk-test", "gpt-4o-mini")
	_, err := g.Reply(context.Background(), "prompt", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("error = %v", err)
	}
}

func TestOpenAIGeneratorRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL, "sk-test", "gpt-4o-mini")
	if _, err := g.Reply(context.Background(), "prompt", nil); err == nil {
		t.Fatal("expected error")
	}
}
