package pricing

import "time"

// Amounts are expressed in minor units (cents) using int64.

// Rate defines what one provider charges for the resources a call consumes.
// Generative providers bill by token; telephony providers bill by connected
// minute plus a per-call connection fee.
type Rate struct {
	Provider string `json:"provider" db:"provider"`
	Currency string `json:"currency" db:"currency"`

	// PerThousandTokensMinor is the price per 1000 generated/consumed tokens.
	PerThousandTokensMinor int64 `json:"per_thousand_tokens_minor" db:"per_thousand_tokens_minor"`

	// PerMinuteMinor is the price per started minute of call time.
	PerMinuteMinor int64 `json:"per_minute_minor" db:"per_minute_minor"`

	// PerCallMinor is a flat connection fee per placed call.
	PerCallMinor int64 `json:"per_call_minor" db:"per_call_minor"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`
}

// Known provider keys. Unknown providers fall back to DefaultRate.
const (
	ProviderTwilio = "twilio"
	ProviderOpenAI = "openai"
)
