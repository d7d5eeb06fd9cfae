package external

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"

	"github.com/chamaledger/identity"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes external sign-in as a JSON API.
type HTTPController struct {
	Logger        identity.Logger
	Authenticator *Authenticator
	Registry      *Registry
}

// NewHTTPController creates the external auth HTTP controller.
func NewHTTPController(authenticator *Authenticator, registry *Registry) *HTTPController {
	if authenticator == nil {
		panic("Missing Authenticator in external controller...")
	}
	if registry == nil {
		panic("Missing Registry in external controller...")
	}

	return &HTTPController{
		Authenticator: authenticator,
		Registry:      registry,
	}
}

// RegisterRoutes registers external auth routes.
func (c *HTTPController) RegisterRoutes(app RouteRegistrar) {
	app.Get("/auth/external/providers", c.ListProviders)
	app.Post("/auth/external", c.Authenticate)
}

// ListProviders returns the configured provider names.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": c.Registry.Providers(),
	})
}

// AuthPayload is the external sign-in request body.
type AuthPayload struct {
	Provider        string `form:"provider" json:"provider"`
	AccessToken     string `form:"access_token" json:"access_token"`
	InvitationToken string `form:"invitation_token" json:"invitation_token"`
}

// Validate will run validation rules
func (r AuthPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Provider, validation.Required),
		validation.Field(&r.AccessToken, validation.Required),
	)
}

// Authenticate signs a user in with a provider-issued credential.
func (c *HTTPController) Authenticate(ctx router.Context) error {
	payload := new(AuthPayload)

	if err := ctx.Bind(payload); err != nil {
		c.log().Error("external auth parse payload: ", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"message": "Error parsing body",
			},
		})
	}

	if err := payload.Validate(); err != nil {
		c.log().Error("external auth validate payload: ", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"message":    "Error validating payload",
				"validation": identity.FormatValidationErrorToMap(err),
			},
		})
	}

	provider, ok := identity.ParseProvider(payload.Provider)
	if !ok {
		return identity.WriteError(ctx, ErrProviderNotFound.Clone())
	}

	result, err := c.Authenticator.Authenticate(ctx.Context(), provider, payload.AccessToken, payload.InvitationToken)
	if err != nil {
		c.log().Error("external auth error: ", "error", err)
		return identity.WriteError(ctx, err)
	}

	status := router.StatusOK
	if result.NewUser {
		status = router.StatusCreated
	}

	return ctx.JSON(status, result)
}

func (c *HTTPController) log() identity.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return identity.NewDefaultLogger()
}
