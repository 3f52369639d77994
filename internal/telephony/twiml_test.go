package telephony

import (
	"strings"
	"testing"
)

func TestRenderSayThenGather(t *testing.T) {
	out, err := NewResponse().
		Say("alice", "Hello there").
		GatherSpeech("https://example.com/hook/gather/r1", "alice", "How can I help?").
		Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"<Response>",
		`<Say voice="alice">Hello there</Say>`,
		`input="speech"`,
		`action="https://example.com/hook/gather/r1"`,
		`speechTimeout="auto"`,
		"How can I help?",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHangupAndRedirect(t *testing.T) {
	out, err := NewResponse().
		Say("", "Goodbye").
		Hangup().
		Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "<Hangup></Hangup>") {
		t.Fatalf("output missing hangup:\n%s", out)
	}
	if strings.Contains(out, "voice=") {
		t.Fatalf("empty voice attribute rendered:\n%s", out)
	}

	out, err = NewResponse().Pause(1).Redirect("https://example.com/hook/gather/r1").Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, `<Pause length="1">`) {
		t.Fatalf("output missing pause:\n%s", out)
	}
	if !strings.Contains(out, `method="POST">https://example.com/hook/gather/r1`) {
		t.Fatalf("output missing redirect:\n%s", out)
	}
}

func TestRenderEscapesContent(t *testing.T) {
	out, err := NewResponse().Say("", `Press "1" & wait <now>`).Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "&amp;") || !strings.Contains(out, "&lt;now&gt;") {
		t.Fatalf("content not escaped:\n%s", out)
	}
}
