package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Webhook form parsers. Twilio voice webhooks POST
// application/x-www-form-urlencoded; only the fields the engine consumes are
// captured. Business decisions are not made here.

// GatherForm is a speech-gather callback: one utterance from the callee.
type GatherForm struct {
	CallSID      string
	SpeechResult string
	Confidence   float64
	From         string
	To           string
}

func ParseGatherForm(r *http.Request) (GatherForm, error) {
	if err := r.ParseForm(); err != nil {
		return GatherForm{}, err
	}
	f := GatherForm{
		CallSID:      r.PostFormValue("CallSid"),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		From:         r.PostFormValue("From"),
		To:           r.PostFormValue("To"),
	}
	if v := r.PostFormValue("Confidence"); v != "" {
		f.Confidence, _ = strconv.ParseFloat(v, 64)
	}
	return f, nil
}

// StatusForm is a call lifecycle callback.
type StatusForm struct {
	CallSID         string
	CallStatus      string
	CallDuration    int
	AnsweredBy      string
	SipResponseCode string
}

// Terminal call statuses as Twilio reports them.
const (
	StatusCompleted = "completed"
	StatusBusy      = "busy"
	StatusNoAnswer  = "no-answer"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	f := StatusForm{
		CallSID:         r.PostFormValue("CallSid"),
		CallStatus:      r.PostFormValue("CallStatus"),
		AnsweredBy:      r.PostFormValue("AnsweredBy"),
		SipResponseCode: r.PostFormValue("SipResponseCode"),
	}
	if v := r.PostFormValue("CallDuration"); v != "" {
		f.CallDuration, _ = strconv.Atoi(v)
	}
	return f, nil
}

// IsTerminal reports whether the status ends the call.
func (f StatusForm) IsTerminal() bool {
	switch f.CallStatus {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// RecordingForm is a recording-ready callback.
type RecordingForm struct {
	CallSID           string
	RecordingSID      string
	RecordingURL      string
	RecordingDuration int
}

func ParseRecordingForm(r *http.Request) (RecordingForm, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingForm{}, err
	}
	f := RecordingForm{
		CallSID:      r.PostFormValue("CallSid"),
		RecordingSID: r.PostFormValue("RecordingSid"),
		RecordingURL: r.PostFormValue("RecordingUrl"),
	}
	if v := r.PostFormValue("RecordingDuration"); v != "" {
		f.RecordingDuration, _ = strconv.Atoi(v)
	}
	return f, nil
}
