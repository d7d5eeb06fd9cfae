package external

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound   = "external_provider_not_found"
	TextCodeVerificationFailed = "external_verification_failed"
	TextCodeProfileIncomplete  = "external_profile_incomplete"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("external provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrVerificationFailed is returned when the provider rejects the credential.
var ErrVerificationFailed = errors.New("external credential verification failed", errors.CategoryAuth).
	WithTextCode(TextCodeVerificationFailed).
	WithCode(errors.CodeUnauthorized)

// ErrProfileIncomplete is returned when a verified profile lacks the fields
// needed to resolve an account, most notably the subject identifier.
var ErrProfileIncomplete = errors.New("external profile incomplete", errors.CategoryAuth).
	WithTextCode(TextCodeProfileIncomplete).
	WithCode(errors.CodeUnauthorized)
