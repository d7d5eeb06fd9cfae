// Package facebook verifies Facebook-issued access tokens through the
// Graph API: debug_token proves the token belongs to our app, then /me
// supplies the profile.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chamaledger/identity"
	"github.com/chamaledger/identity/external"
)

const defaultGraphURL = "https://graph.facebook.com/v19.0"

// Config holds Facebook verification configuration.
type Config struct {
	AppID     string
	AppSecret string

	GraphURL string

	HTTPClient *http.Client
}

// Verifier implements external.Verifier for Facebook.
type Verifier struct {
	config     Config
	httpClient *http.Client
}

// New creates a Facebook verifier.
func New(cfg Config) (*Verifier, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("facebook: app ID and secret are required")
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = defaultGraphURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Verifier{
		config:     cfg,
		httpClient: client,
	}, nil
}

// Name implements external.Verifier.
func (v *Verifier) Name() identity.AuthMethod {
	return identity.AuthMethodFacebook
}

// Verify implements external.Verifier.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (*external.Profile, error) {
	if accessToken == "" {
		return nil, verificationError("empty credential", nil, nil)
	}

	userID, err := v.debugToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	profile, err := v.fetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	// the profile must belong to the token we inspected
	if profile.ExternalID != userID {
		return nil, verificationError("token subject mismatch", nil, map[string]any{
			"token_user_id":   userID,
			"profile_user_id": profile.ExternalID,
		})
	}

	return profile, nil
}

type debugTokenResponse struct {
	Data struct {
		AppID     string `json:"app_id"`
		IsValid   bool   `json:"is_valid"`
		UserID    string `json:"user_id"`
		ExpiresAt int64  `json:"expires_at"`
		Error     struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

func (v *Verifier) debugToken(ctx context.Context, accessToken string) (string, error) {
	params := url.Values{
		"input_token":  {accessToken},
		"access_token": {v.config.AppID + "|" + v.config.AppSecret},
	}

	body, status, err := v.get(ctx, "/debug_token?"+params.Encode())
	if err != nil {
		return "", verificationError("debug_token request failed", err, nil)
	}
	if status != http.StatusOK {
		return "", graphError("debug_token", status, body)
	}

	var resp debugTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", verificationError("failed to decode debug_token response", err, nil)
	}

	switch {
	case !resp.Data.IsValid:
		return "", verificationError("token is not valid", nil, map[string]any{
			"error": resp.Data.Error.Message,
		})
	case resp.Data.AppID != v.config.AppID:
		return "", verificationError("token issued for a different app", nil, map[string]any{
			"app_id": resp.Data.AppID,
		})
	case resp.Data.ExpiresAt > 0 && time.Now().Unix() > resp.Data.ExpiresAt:
		return "", verificationError("token expired", nil, nil)
	case resp.Data.UserID == "":
		return "", external.ErrProfileIncomplete.Clone()
	}

	return resp.Data.UserID, nil
}

type graphProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (v *Verifier) fetchProfile(ctx context.Context, accessToken string) (*external.Profile, error) {
	params := url.Values{
		"fields":       {"id,email,first_name,last_name"},
		"access_token": {accessToken},
	}

	body, status, err := v.get(ctx, "/me?"+params.Encode())
	if err != nil {
		return nil, verificationError("profile request failed", err, nil)
	}
	if status != http.StatusOK {
		return nil, graphError("me", status, body)
	}

	var profile graphProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, verificationError("failed to decode profile response", err, nil)
	}
	if profile.ID == "" {
		return nil, external.ErrProfileIncomplete.Clone()
	}

	return &external.Profile{
		Provider:   identity.AuthMethodFacebook,
		ExternalID: profile.ID,
		Email:      profile.Email,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
	}, nil
}

func (v *Verifier) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.GraphURL+path, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}

type graphErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func graphError(operation string, status int, body []byte) error {
	meta := map[string]any{
		"operation": operation,
		"status":    status,
	}

	var parsed graphErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		meta["error"] = parsed.Error.Message
		meta["type"] = parsed.Error.Type
		meta["code"] = parsed.Error.Code
	} else if msg := strings.TrimSpace(string(body)); msg != "" {
		meta["body"] = msg
	}

	return verificationError("graph api request rejected", nil, meta)
}

func verificationError(cause string, err error, meta map[string]any) error {
	clone := external.ErrVerificationFailed.Clone()
	clone.Source = err

	if meta == nil {
		meta = map[string]any{}
	}
	meta["provider"] = "facebook"
	meta["cause"] = cause

	return clone.WithMetadata(meta)
}
