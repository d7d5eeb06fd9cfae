package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds      = "auth_invalid_credentials"
	TextCodeAccountDisabled   = "auth_account_deactivated"
	TextCodeEmailTaken        = "auth_email_taken"
	TextCodeUsernameTaken     = "auth_username_taken"
	TextCodeInvitationInvalid = "auth_invitation_invalid"
	TextCodeUnsupportedMethod = "auth_unsupported_method"
	TextCodeNotFound          = "auth_identity_not_found"
	TextCodeTokenExpired      = "auth_token_expired"
	TextCodeTokenMalformed    = "auth_token_malformed"
	TextCodeSessionMissing    = "auth_session_missing"
	TextCodeSessionMalformed  = "auth_session_malformed"
	TextCodeSelfAdmin         = "auth_self_administration"
)

// ErrInvalidCredentials covers both unknown identifier and wrong
// password so callers cannot enumerate accounts.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrAccountDeactivated is returned for credential-valid but disabled accounts.
var ErrAccountDeactivated = errors.New("account is deactivated", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeUnauthorized)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrUsernameTaken is returned when registering a username that already exists.
var ErrUsernameTaken = errors.New("username already taken", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeConflict)

// ErrInvitationInvalid is returned for unknown, consumed, or expired tokens.
var ErrInvitationInvalid = errors.New("invalid or expired invitation token", errors.CategoryValidation).
	WithTextCode(TextCodeInvitationInvalid).
	WithCode(errors.CodeBadRequest)

// ErrUnsupportedAuthMethod is returned when a password operation hits a
// provider-backed account.
var ErrUnsupportedAuthMethod = errors.New("operation not supported for this auth method", errors.CategoryValidation).
	WithTextCode(TextCodeUnsupportedMethod).
	WithCode(errors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(errors.CodeNotFound)

// ErrSelfAdministration stops an admin from changing their own role or
// active flag, so a sole administrator cannot lock the community out.
var ErrSelfAdministration = errors.New("cannot change your own role or status", errors.CategoryValidation).
	WithTextCode(TextCodeSelfAdmin).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned for structurally valid but expired session tokens.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when a session token fails to parse or verify.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToFindSession is returned when no validated claims are in
// the request context.
var ErrUnableToFindSession = errors.New("unable to find session in context", errors.CategoryAuth).
	WithTextCode(TextCodeSessionMissing).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when context claims have an
// unexpected shape.
var ErrUnableToDecodeSession = errors.New("unable to decode session claims", errors.CategoryAuth).
	WithTextCode(TextCodeSessionMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects blank input where a secret is required.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch; the
// authenticator folds it into ErrInvalidCredentials before it leaves
// the package boundary.
var ErrMismatchedHashAndPassword = errors.New("hashed password mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
