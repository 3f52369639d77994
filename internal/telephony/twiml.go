package telephony

import (
	"bytes"
	"encoding/xml"
)

// Minimal TwiML response builder. It intentionally avoids any provider SDK
// dependency; only the verbs the conversation engine emits are modeled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Verbs         []any    `xml:",any"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

// Response accumulates verbs and renders them as a TwiML document.
type Response struct {
	verbs []any
}

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(voice, text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Voice: voice, Text: text})
	return r
}

// GatherSpeech speaks a prompt and collects the callee's next utterance,
// posting the transcription to action.
func (r *Response) GatherSpeech(action, voice, prompt string) *Response {
	g := twimlGather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		SpeechTimeout: "auto",
	}
	if prompt != "" {
		g.Verbs = append(g.Verbs, twimlSay{Voice: voice, Text: prompt})
	}
	r.verbs = append(r.verbs, g)
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, twimlPause{Length: seconds})
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

// Redirect re-enters the webhook flow at url. Used when a turn produced no
// speech and the engine wants to re-prompt.
func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, twimlRedirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Render() (string, error) {
	doc := twimlResponse{Verbs: r.verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
