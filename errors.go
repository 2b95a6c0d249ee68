package portalAuth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the session store.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateAccount is an exported constant or variable used by the session store.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrProfileNotFound is an exported constant or variable used by the session store.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileFetchFailed is an exported constant or variable used by the session store.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
	// ErrProviderUnavailable is an exported constant or variable used by the session store.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrRateLimited is an exported constant or variable used by the session store.
	ErrRateLimited = errors.New("too many attempts")
	// ErrInvalidInput is an exported constant or variable used by the session store.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotAuthenticated is an exported constant or variable used by the session store.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrOperationInProgress is an exported constant or variable used by the session store.
	ErrOperationInProgress = errors.New("another session operation is in progress")
	// ErrStoreClosed is an exported constant or variable used by the session store.
	ErrStoreClosed = errors.New("session store closed")
	// ErrAlreadyInitialized is an exported constant or variable used by the session store.
	ErrAlreadyInitialized = errors.New("session store already initialized")
	// ErrBuilderUsed is an exported constant or variable used by the session store.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrNoProvider is an exported constant or variable used by the session store.
	ErrNoProvider = errors.New("identity provider is required")

	errSessionSuperseded = errors.New("session changed while the operation was running")
)

// Reason classifies a failed store operation.
type Reason uint8

const (
	// ReasonProviderUnavailable covers network failures and any unrecognized provider error.
	ReasonProviderUnavailable Reason = iota
	// ReasonInvalidCredentials is an exported constant or variable used by the session store.
	ReasonInvalidCredentials
	// ReasonDuplicateAccount is an exported constant or variable used by the session store.
	ReasonDuplicateAccount
	// ReasonProfileFetchFailed means the identity authenticated but its profile row is
	// missing or unreadable.
	ReasonProfileFetchFailed
	// ReasonInvalidInput is an exported constant or variable used by the session store.
	ReasonInvalidInput
	// ReasonRateLimited is an exported constant or variable used by the session store.
	ReasonRateLimited
	// ReasonNotAuthenticated is an exported constant or variable used by the session store.
	ReasonNotAuthenticated
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidCredentials:
		return "invalid_credentials"
	case ReasonDuplicateAccount:
		return "duplicate_account"
	case ReasonProfileFetchFailed:
		return "profile_fetch_failed"
	case ReasonInvalidInput:
		return "invalid_input"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonNotAuthenticated:
		return "not_authenticated"
	default:
		return "provider_unavailable"
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonInvalidCredentials:
		return ErrInvalidCredentials
	case ReasonDuplicateAccount:
		return ErrDuplicateAccount
	case ReasonProfileFetchFailed:
		return ErrProfileFetchFailed
	case ReasonInvalidInput:
		return ErrInvalidInput
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonNotAuthenticated:
		return ErrNotAuthenticated
	default:
		return ErrProviderUnavailable
	}
}

// FieldError names one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AuthError defines a public type used by portalAuth APIs.
//
// AuthError is returned by every failed Login, Signup and UpdateProfile call. It
// unwraps to both the reason sentinel and the underlying cause, so
// errors.Is(err, ErrInvalidCredentials) works on the returned value.
type AuthError struct {
	Op     string
	Reason Reason
	Fields []FieldError
	Err    error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("portalAuth: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Reason.sentinel().Error())
	if e.Err != nil && !errors.Is(e.Err, e.Reason.sentinel()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the reason sentinel and the cause.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason.sentinel()}
	}
	return []error{e.Reason.sentinel(), e.Err}
}

// Message returns the human-readable text stored in [Session.LastError].
func (e *AuthError) Message() string {
	switch e.Reason {
	case ReasonInvalidCredentials:
		return "Invalid email or password."
	case ReasonDuplicateAccount:
		return "An account with this email already exists."
	case ReasonProfileFetchFailed:
		return "Your account profile could not be loaded. Please contact the portal administrators."
	case ReasonInvalidInput:
		if len(e.Fields) == 0 {
			return "Please check the form and try again."
		}
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return "Please check the form: " + strings.Join(parts, "; ") + "."
	case ReasonRateLimited:
		return "Too many attempts. Please wait a moment and try again."
	case ReasonNotAuthenticated:
		return "You need to sign in first."
	default:
		return "The sign-in service is unavailable right now. Please try again."
	}
}

// ReasonOf extracts the [Reason] of an [AuthError] anywhere in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return 0, false
}

// classify maps a provider or validation error onto an AuthError for op.
func classify(op string, err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		if ae.Op == "" {
			cp := *ae
			cp.Op = op
			return &cp
		}
		return ae
	}

	reason := ReasonProviderUnavailable
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		reason = ReasonInvalidCredentials
	case errors.Is(err, ErrDuplicateAccount):
		reason = ReasonDuplicateAccount
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrProfileFetchFailed):
		reason = ReasonProfileFetchFailed
	case errors.Is(err, ErrRateLimited):
		reason = ReasonRateLimited
	case errors.Is(err, ErrInvalidInput):
		reason = ReasonInvalidInput
	case errors.Is(err, ErrNotAuthenticated):
		reason = ReasonNotAuthenticated
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = ReasonProviderUnavailable
	}
	return &AuthError{Op: op, Reason: reason, Err: err}
}
