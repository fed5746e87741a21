package gateway

import (
	"fmt"
	"net/http"

	"whatsapp-broadcast-platform/internal/core/domain"
)

// Provider error codes that refine the HTTP-status classification.
const (
	codeTokenExpired       = 190    // OAuth token invalid or expired
	codePermissionDenied   = 10     // permission not granted for the number
	codeThroughputReached  = 130429 // cloud API throughput ceiling
	codeSpendLimitReached  = 80007  // business account rate limit
	codeInvalidRecipient   = 131026 // recipient cannot receive this message
	codeTemplateNotFound   = 132001 // template missing or not approved
	codeTemplateParamCount = 132000 // parameter count mismatch
	codeReengagement       = 131047 // outside the re-engagement window
)

// categorize maps one gateway rejection to a typed SendError. This is the
// single normalization point for provider error shapes; nothing downstream
// re-parses status codes or message strings.
func categorize(httpStatus int, werr *wireError) *domain.SendError {
	code := ""
	detail := http.StatusText(httpStatus)
	providerCode := 0
	if werr != nil {
		providerCode = werr.Code
		code = fmt.Sprintf("%d", werr.Code)
		if werr.Message != "" {
			detail = werr.Message
		}
	}

	category := domain.SendErrorUnknown
	switch {
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		category = domain.SendErrorAuth
	case providerCode == codeTokenExpired || providerCode == codePermissionDenied:
		category = domain.SendErrorAuth
	case httpStatus == http.StatusTooManyRequests:
		category = domain.SendErrorRateLimit
	case providerCode == codeThroughputReached || providerCode == codeSpendLimitReached:
		category = domain.SendErrorRateLimit
	case providerCode == codeInvalidRecipient || providerCode == codeTemplateNotFound ||
		providerCode == codeTemplateParamCount || providerCode == codeReengagement:
		category = domain.SendErrorRecipient
	case httpStatus >= 500:
		category = domain.SendErrorTemporary
	case httpStatus == http.StatusBadRequest:
		// A 400 without a recognized recipient-level code: treat
		// conservatively as non-retryable.
		category = domain.SendErrorUnknown
	}

	return &domain.SendError{Category: category, Code: code, Detail: detail}
}
