// Package google verifies Google-issued credentials. ID tokens are
// checked offline against Google's JWKS; opaque access tokens fall
// back to the userinfo endpoint.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/chamaledger/identity"
	"github.com/chamaledger/identity/external"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	issuerCanonical = "https://accounts.google.com"
	issuerLegacy    = "accounts.google.com"
)

// Config holds Google verification configuration.
type Config struct {
	// ClientID is the expected audience of ID tokens.
	ClientID string

	JWKSURL     string
	UserInfoURL string

	// AllowOpaqueTokens enables the userinfo fallback for credentials
	// that are not ID tokens.
	AllowOpaqueTokens bool

	HTTPClient *http.Client
}

// Verifier implements external.Verifier for Google.
type Verifier struct {
	config     Config
	jwks       *keyfunc.JWKS
	httpClient *http.Client
}

// New creates a Google verifier. It starts a background refresh of
// Google's signing keys; call Close to stop it.
func New(cfg Config) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("google: client ID is required")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = defaultJWKSURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Client: client,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of Google JWK set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to load JWK set: %w", err)
	}

	return &Verifier{
		config:     cfg,
		jwks:       jwks,
		httpClient: client,
	}, nil
}

// Close stops the background JWKS refresh.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Name implements external.Verifier.
func (v *Verifier) Name() identity.AuthMethod {
	return identity.AuthMethodGoogle
}

// Verify implements external.Verifier.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (*external.Profile, error) {
	if accessToken == "" {
		return nil, verificationError("empty credential", nil, nil)
	}

	if looksLikeJWT(accessToken) {
		return v.verifyIDToken(accessToken)
	}

	if v.config.AllowOpaqueTokens {
		return v.fetchUserInfo(ctx, accessToken)
	}

	return nil, verificationError("credential is not an ID token", nil, nil)
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (v *Verifier) verifyIDToken(idToken string) (*external.Profile, error) {
	claims := &idTokenClaims{}

	token, err := jwt.ParseWithClaims(idToken, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.config.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, verificationError("ID token rejected", err, nil)
	}
	if !token.Valid {
		return nil, verificationError("ID token invalid", nil, nil)
	}

	if claims.Issuer != issuerCanonical && claims.Issuer != issuerLegacy {
		return nil, verificationError("unexpected issuer", nil, map[string]any{
			"issuer": claims.Issuer,
		})
	}
	if claims.Subject == "" {
		return nil, external.ErrProfileIncomplete.Clone()
	}

	profile := &external.Profile{
		Provider:   identity.AuthMethodGoogle,
		ExternalID: claims.Subject,
		FirstName:  claims.GivenName,
		LastName:   claims.FamilyName,
	}
	// an unverified email must not drive account linking
	if claims.EmailVerified {
		profile.Email = claims.Email
	}

	return profile, nil
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (v *Verifier) fetchUserInfo(ctx context.Context, accessToken string) (*external.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, verificationError("userinfo request failed", err, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, verificationError("userinfo request rejected", nil, map[string]any{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(body)),
		})
	}

	var info userInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, verificationError("failed to decode userinfo response", err, nil)
	}
	if info.Sub == "" {
		return nil, external.ErrProfileIncomplete.Clone()
	}

	profile := &external.Profile{
		Provider:   identity.AuthMethodGoogle,
		ExternalID: info.Sub,
		FirstName:  info.GivenName,
		LastName:   info.FamilyName,
	}
	if info.EmailVerified {
		profile.Email = info.Email
	}

	return profile, nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func verificationError(cause string, err error, meta map[string]any) error {
	clone := external.ErrVerificationFailed.Clone()
	clone.Source = err

	if meta == nil {
		meta = map[string]any{}
	}
	meta["provider"] = "google"
	meta["cause"] = cause

	return clone.WithMetadata(meta)
}
