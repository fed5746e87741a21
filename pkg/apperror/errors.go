package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Campaigns (CMP) ----

func ErrCampaignNotFound() *AppError {
	return New("CMP_001", "Campaign not found", http.StatusNotFound)
}

func ErrCampaignNotRunning(status string) *AppError {
	return New("CMP_002", fmt.Sprintf("Campaign is not running (status: %s)", status), http.StatusBadRequest)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("CMP_003", fmt.Sprintf("Cannot move campaign from %s to %s", from, to), http.StatusConflict)
}

func ErrNoRecipients() *AppError {
	return New("CMP_004", "Campaign has no recipients selected", http.StatusBadRequest)
}

func ErrTemplateNotApproved(status string) *AppError {
	return New("CMP_005", fmt.Sprintf("Template is not approved (status: %s)", status), http.StatusUnprocessableEntity)
}

// ---- Channels (CHN) ----

func ErrChannelNotFound() *AppError {
	return New("CHN_001", "Channel not found", http.StatusNotFound)
}

func ErrChannelNotConnected() *AppError {
	return New("CHN_002", "Channel is not connected", http.StatusUnprocessableEntity)
}

func ErrChannelMissingCredentials() *AppError {
	return New("CHN_003", "Channel has no send credentials or subscription configured", http.StatusUnprocessableEntity)
}

// ---- Inbox (INB) ----

func ErrConversationNotFound() *AppError {
	return New("INB_001", "Conversation not found", http.StatusNotFound)
}

func ErrServiceWindowClosed() *AppError {
	return New("INB_002", "24-hour service window has closed; only templates may be sent", http.StatusUnprocessableEntity)
}

func ErrSendFailed(err error) *AppError {
	return Wrap("INB_003", "Message could not be sent", http.StatusBadGateway, err)
}

// ---- Contacts (CNT) ----

func ErrContactNotFound() *AppError {
	return New("CNT_001", "Contact not found", http.StatusNotFound)
}

func ErrInvalidPhone(phone string) *AppError {
	return New("CNT_002", fmt.Sprintf("Phone number %q is not valid", phone), http.StatusBadRequest)
}

func ErrContactExists() *AppError {
	return New("CNT_003", "Contact with this phone already exists", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("AUTH_002", "Email already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_002", "Credential encryption failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
