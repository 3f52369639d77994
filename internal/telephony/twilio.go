package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioDialer places calls through the Twilio REST API. No provider SDK;
// a plain form POST to Calls.json is the entire surface we need.
type TwilioDialer struct {
	httpClient *http.Client
	baseURL    string
}

type TwilioOption func(*TwilioDialer)

// WithBaseURL points the dialer at a different API host. Tests use this with
// httptest servers.
func WithBaseURL(u string) TwilioOption {
	return func(d *TwilioDialer) { d.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(c *http.Client) TwilioOption {
	return func(d *TwilioDialer) { d.httpClient = c }
}

func NewTwilioDialer(opts ...TwilioOption) *TwilioDialer {
	d := &TwilioDialer{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    twilioAPIBase,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type twilioCallResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (d *TwilioDialer) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.AccountSID == "" || req.AuthToken == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: credentials required")
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.AnswerURL)
	form.Set("Method", "POST")
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackMethod", "POST")
	}
	if req.RecordingCallbackURL != "" {
		form.Set("Record", "true")
		form.Set("RecordingStatusCallback", req.RecordingCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", d.baseURL, url.PathEscape(req.AccountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return PlaceCallResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(req.AccountSID, req.AuthToken)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: read response: %w", err)
	}

	var parsed twilioCallResponse
	// Error bodies share the shape; a decode failure on an error status still
	// yields a usable CallError below.
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return PlaceCallResult{}, &CallError{
			StatusCode: resp.StatusCode,
			Code:       parsed.Code,
			Message:    msg,
		}
	}
	if parsed.SID == "" {
		return PlaceCallResult{}, fmt.Errorf("telephony: response missing call sid")
	}

	return PlaceCallResult{ProviderCallID: parsed.SID, Status: parsed.Status}, nil
}
