package domain

// SendErrorCategory is the typed classification of a failed gateway send.
// It is produced once, at the gateway boundary, from the HTTP status and
// provider error code; everything downstream switches on this enum instead
// of re-parsing response strings.
type SendErrorCategory string

const (
	// SendErrorAuth: credentials rejected (401/403). Pauses the whole
	// campaign; every subsequent send would fail identically.
	SendErrorAuth SendErrorCategory = "auth"
	// SendErrorRateLimit: 429. Not terminal for the recipient; the batch
	// slows down and the send is retried.
	SendErrorRateLimit SendErrorCategory = "rate_limit"
	// SendErrorRecipient: invalid phone, unapproved template or another
	// per-recipient 4xx. Terminal for the recipient.
	SendErrorRecipient SendErrorCategory = "recipient"
	// SendErrorTemporary: 5xx, timeout, network. Retryable up to
	// MaxSendAttempts with exponential backoff.
	SendErrorTemporary SendErrorCategory = "temporary"
	// SendErrorUnknown: anything unclassifiable. Treated as non-retryable.
	SendErrorUnknown SendErrorCategory = "unknown"
)

// Retryable reports whether the dispatcher may schedule another attempt.
func (c SendErrorCategory) Retryable() bool {
	return c == SendErrorRateLimit || c == SendErrorTemporary
}

// SendError carries the normalized failure of one gateway call.
type SendError struct {
	Category SendErrorCategory
	Code     string // provider error code, if any
	Detail   string
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return string(e.Category) + " (" + e.Code + "): " + e.Detail
	}
	return string(e.Category) + ": " + e.Detail
}
