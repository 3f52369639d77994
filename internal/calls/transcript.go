package calls

import (
	"regexp"
	"strings"
	"time"
)

// Legacy transcript text format: one line per turn,
//
//	[2026-01-02T15:04:05Z] user: hello there
//
// Structured call_turns rows are the source of truth; this codec exists for
// transcript export and for importing transcripts persisted by the previous
// system. Lines that do not match the pattern are dropped on parse.

var transcriptLine = regexp.MustCompile(`^\[([^\]]+)\] (user|assistant): (.*)$`)

// RenderTranscript serializes turns into the legacy line format.
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(t.CreatedAt.UTC().Format(time.RFC3339))
		b.WriteString("] ")
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// ParseTranscript rebuilds ordered turns from legacy transcript text.
// Malformed lines are skipped rather than failing the whole parse: a live
// call must not abort because one stored line was mangled.
func ParseTranscript(text string) []Turn {
	var out []Turn
	for _, line := range strings.Split(text, "\n") {
		m := transcriptLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, m[1])
		if err != nil {
			continue
		}
		out = append(out, Turn{
			Seq:       len(out) + 1,
			Role:      TurnRole(m[2]),
			Content:   m[3],
			CreatedAt: ts,
		})
	}
	return out
}
