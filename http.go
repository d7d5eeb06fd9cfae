package identity

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/chamaledger/identity/middleware/jwtware"
)

type validatorAdapter struct {
	tokens TokenService
}

func (v validatorAdapter) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := v.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RouteGuard builds the bearer-token middleware that protects routes.
type RouteGuard struct {
	tokens       TokenService
	cfg          Config
	Logger       Logger
	ErrorHandler router.ErrorHandler
}

// NewRouteGuard creates a RouteGuard from the token service and config.
func NewRouteGuard(tokens TokenService, cfg Config) *RouteGuard {
	g := &RouteGuard{
		tokens: tokens,
		cfg:    cfg,
		Logger: defLogger{},
	}
	g.ErrorHandler = g.defaultAuthErrHandler
	return g
}

// Protected requires a valid bearer token. An optional minimum role
// restricts the route further using the role hierarchy.
func (g *RouteGuard) Protected(minRole ...UserRole) router.MiddlewareFunc {
	cfg := jwtware.Config{
		ErrorHandler: g.ErrorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    []byte(g.cfg.GetSigningKey()),
			JWTAlg: g.cfg.GetSigningMethod(),
		},
		ContextKey:     g.cfg.GetContextKey(),
		TokenLookup:    g.cfg.GetTokenLookup(),
		AuthScheme:     g.cfg.GetAuthScheme(),
		TokenValidator: validatorAdapter{tokens: g.tokens},
	}

	if len(minRole) > 0 {
		cfg.MinimumRole = string(minRole[0])
	}

	return jwtware.New(cfg)
}

// AdminOnly requires a valid bearer token carrying the admin role.
func (g *RouteGuard) AdminOnly() router.MiddlewareFunc {
	return g.Protected(RoleAdmin)
}

func (g *RouteGuard) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error

	if IsTokenExpiredError(err) {
		richErr = ErrTokenExpired.Clone()
	} else if IsMalformedError(err) {
		richErr = ErrTokenMalformed.Clone()
	} else if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
			WithCode(errors.CodeUnauthorized)
	}

	g.Logger.Info(
		"Authentication error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	return WriteError(c, richErr)
}

// ClaimsFromContext returns the validated claims stored by the route
// guard middleware under key.
func ClaimsFromContext(c router.Context, key string) (*SessionClaims, error) {
	value := c.Locals(key)
	if value == nil {
		return nil, ErrUnableToFindSession.Clone()
	}

	claims, ok := value.(*SessionClaims)
	if !ok || claims == nil {
		return nil, ErrUnableToDecodeSession.Clone()
	}

	return claims, nil
}

// WriteError renders err as a JSON response. Rich errors map their
// code to the HTTP status; anything else becomes a 500.
func WriteError(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := richErr.Code
	if status < http.StatusContinue {
		status = http.StatusInternalServerError
	}

	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  richErr.Category,
		},
	})
}

func debugJSON(logger Logger, label string, v any) {
	if logger == nil {
		return
	}
	logger.Debug("======= %s ======", label)
	logger.Debug(print.MaybePrettyJSON(v))
	logger.Debug("=========================")
}
