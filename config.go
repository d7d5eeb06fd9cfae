package identity

// Settings is a plain-struct Config implementation. Zero values fall
// back to the package defaults through the getters.
type Settings struct {
	SigningKey             string
	SigningMethod          string
	TokenExpiration        int
	RefreshExpiration      int
	InvitationValidityDays int
	Issuer                 string
	Audience               []string
	ContextKey             string
	TokenLookup            string
	AuthScheme             string
}

// GetSigningKey returns the HMAC signing secret.
func (s Settings) GetSigningKey() string {
	return s.SigningKey
}

// GetSigningMethod returns the JWT signing algorithm.
func (s Settings) GetSigningMethod() string {
	if s.SigningMethod == "" {
		return "HS256"
	}
	return s.SigningMethod
}

// GetTokenExpiration returns the access token lifetime in minutes.
func (s Settings) GetTokenExpiration() int {
	if s.TokenExpiration <= 0 {
		return 60
	}
	return s.TokenExpiration
}

// GetRefreshExpiration returns the refresh artifact lifetime in days.
func (s Settings) GetRefreshExpiration() int {
	if s.RefreshExpiration <= 0 {
		return DefaultRefreshExpirationDays
	}
	return s.RefreshExpiration
}

// GetInvitationValidityDays returns the invitation lifetime in days.
func (s Settings) GetInvitationValidityDays() int {
	if s.InvitationValidityDays <= 0 {
		return DefaultInvitationValidityDays
	}
	return s.InvitationValidityDays
}

// GetIssuer returns the token issuer claim.
func (s Settings) GetIssuer() string {
	return s.Issuer
}

// GetAudience returns the token audience claim.
func (s Settings) GetAudience() []string {
	return s.Audience
}

// GetContextKey returns the router locals key for validated claims.
func (s Settings) GetContextKey() string {
	if s.ContextKey == "" {
		return "user"
	}
	return s.ContextKey
}

// GetTokenLookup returns the middleware token lookup spec.
func (s Settings) GetTokenLookup() string {
	return s.TokenLookup
}

// GetAuthScheme returns the Authorization header scheme.
func (s Settings) GetAuthScheme() string {
	if s.AuthScheme == "" {
		return "Bearer"
	}
	return s.AuthScheme
}
