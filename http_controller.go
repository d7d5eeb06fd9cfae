package identity

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controllers.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the identity flows as a JSON API.
type HTTPController struct {
	Debug       bool
	Logger      Logger
	Auther      *Authenticator
	Sessions    *SessionService
	Invitations *InvitationService
	Guard       *RouteGuard
	ContextKey  string
}

type HTTPControllerOption func(*HTTPController) *HTTPController

// NewHTTPController creates the identity HTTP controller.
func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:     defLogger{},
		ContextKey: "user",
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in identity controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionService in identity controller...")
	}

	if c.Invitations == nil {
		panic("Missing InvitationService in identity controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in identity controller...")
	}

	return c
}

// WithAuthenticator sets the credential authenticator.
func WithAuthenticator(auther *Authenticator) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Auther = auther
		return c
	}
}

// WithSessions sets the session service.
func WithSessions(sessions *SessionService) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Sessions = sessions
		return c
	}
}

// WithInvitations sets the invitation service.
func WithInvitations(invitations *InvitationService) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Invitations = invitations
		return c
	}
}

// WithGuard sets the route guard.
func WithGuard(guard *RouteGuard) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Guard = guard
		return c
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// RegisterRoutes registers the identity routes on the given registrar.
func (c *HTTPController) RegisterRoutes(app RouteRegistrar) {
	app.Post("/auth/login", c.Login)
	app.Post("/auth/register", c.Register)
	app.Post("/auth/refresh", c.Refresh)
	app.Post("/auth/logout", c.Logout, c.Guard.Protected())
	app.Get("/auth/invitations/:token", c.ValidateInvitation)

	app.Post("/me/password", c.ChangePassword, c.Guard.Protected())

	app.Get("/invitations", c.ListInvitations, c.Guard.AdminOnly())
	app.Post("/invitations", c.CreateInvitation, c.Guard.AdminOnly())
	app.Get("/invitations/:id", c.GetInvitation, c.Guard.AdminOnly())
	app.Delete("/invitations/:id", c.DeleteInvitation, c.Guard.AdminOnly())
	app.Post("/invitations/cleanup", c.CleanupInvitations, c.Guard.AdminOnly())

	app.Post("/users/:id/role", c.SetUserRole, c.Guard.AdminOnly())
	app.Post("/users/:id/active", c.SetUserActive, c.Guard.AdminOnly())
}

// LoginPayload is the credential login request body.
type LoginPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			validation.Length(1, 200),
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// Login exchanges credentials for a session.
func (c *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	session, err := c.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		c.Logger.Error("login error: ", "error", err)
		return WriteError(ctx, err)
	}

	if c.Debug {
		debugJSON(c.Logger, "IDENTITY LOGIN", session.User)
	}

	return ctx.JSON(router.StatusOK, session)
}

// RegisterPayload is the registration request body.
type RegisterPayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Username        string `form:"username" json:"username"`
	Phone           string `form:"phone" json:"phone"`
	PhoneRegion     string `form:"phone_region" json:"phone_region"`
	DateOfBirth     string `form:"date_of_birth" json:"date_of_birth"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	InvitationToken string `form:"invitation_token" json:"invitation_token"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Username, validation.Length(3, 100)),
		validation.Field(&r.DateOfBirth, validation.Date("2006-01-02")),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// Register creates a new account and signs it in.
func (c *HTTPController) Register(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	msg := RegisterMessage{
		FirstName:       payload.FirstName,
		LastName:        payload.LastName,
		Email:           payload.Email,
		Username:        payload.Username,
		Password:        payload.Password,
		Phone:           payload.Phone,
		PhoneRegion:     payload.PhoneRegion,
		InvitationToken: payload.InvitationToken,
	}

	if payload.DateOfBirth != "" {
		// format enforced by Validate
		if dob, err := time.Parse("2006-01-02", payload.DateOfBirth); err == nil {
			msg.DateOfBirth = &dob
		}
	}

	if c.Debug {
		debugJSON(c.Logger, "IDENTITY REGISTER", payload)
	}

	session, err := c.Auther.Register(ctx.Context(), msg)
	if err != nil {
		c.Logger.Error("register error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, session)
}

// RefreshPayload carries the opaque refresh artifact.
type RefreshPayload struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// Refresh rotates a refresh artifact into a new session.
func (c *HTTPController) Refresh(ctx router.Context) error {
	payload := new(RefreshPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	session, err := c.Sessions.Exchange(ctx.Context(), payload.RefreshToken)
	if err != nil {
		c.Logger.Error("refresh error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, session)
}

// Logout revokes every refresh grant for the authenticated user.
func (c *HTTPController) Logout(ctx router.Context) error {
	userID, err := c.currentUserID(ctx)
	if err != nil {
		return WriteError(ctx, err)
	}

	if err := c.Sessions.RevokeAll(ctx.Context(), userID); err != nil {
		c.Logger.Error("logout error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "logged_out",
	})
}

// ChangePasswordPayload is the password change request body.
type ChangePasswordPayload struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// ChangePassword rotates the authenticated user's password.
func (c *HTTPController) ChangePassword(ctx router.Context) error {
	userID, err := c.currentUserID(ctx)
	if err != nil {
		return WriteError(ctx, err)
	}

	payload := new(ChangePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	updated, err := c.Auther.ChangePassword(ctx.Context(), userID, payload.CurrentPassword, payload.NewPassword)
	if err != nil {
		c.Logger.Error("change password error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"updated": updated,
	})
}

// ValidateInvitation reports whether an invitation token can still be
// redeemed. The answer never distinguishes unknown from consumed or
// expired tokens.
func (c *HTTPController) ValidateInvitation(ctx router.Context) error {
	token := ctx.Param("token")
	if token == "" {
		return WriteError(ctx, ErrInvitationInvalid.Clone())
	}

	valid, err := c.Invitations.IsValid(ctx.Context(), token)
	if err != nil {
		c.Logger.Error("invitation check error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"valid": valid,
	})
}

// CreateInvitationPayload is the admin invitation request body.
type CreateInvitationPayload struct {
	ValidityDays int `form:"validity_days" json:"validity_days"`
}

// Validate will validate the payload
func (r CreateInvitationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ValidityDays, validation.Min(0), validation.Max(90)),
	)
}

// CreateInvitation mints a new invitation on behalf of the admin.
func (c *HTTPController) CreateInvitation(ctx router.Context) error {
	creatorID, err := c.currentUserID(ctx)
	if err != nil {
		return WriteError(ctx, err)
	}

	payload := new(CreateInvitationPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	invitation, err := c.Invitations.Create(ctx.Context(), creatorID, payload.ValidityDays)
	if err != nil {
		c.Logger.Error("invitation create error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, invitation)
}

// ListInvitations returns every invitation still open for redemption.
func (c *HTTPController) ListInvitations(ctx router.Context) error {
	invitations, err := c.Invitations.ListValid(ctx.Context())
	if err != nil {
		c.Logger.Error("invitation list error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"invitations": invitations,
	})
}

// GetInvitation returns a single invitation by ID.
func (c *HTTPController) GetInvitation(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return WriteError(ctx, ErrIdentityNotFound.Clone())
	}

	invitation, err := c.Invitations.GetByID(ctx.Context(), id)
	if err != nil {
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, invitation)
}

// DeleteInvitation removes an invitation before it is redeemed.
func (c *HTTPController) DeleteInvitation(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return WriteError(ctx, ErrIdentityNotFound.Clone())
	}

	deleted, err := c.Invitations.Delete(ctx.Context(), id)
	if err != nil {
		c.Logger.Error("invitation delete error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"deleted": deleted,
	})
}

// CleanupInvitations deletes expired invitations that were never used.
func (c *HTTPController) CleanupInvitations(ctx router.Context) error {
	removed, err := c.Invitations.CleanupExpired(ctx.Context())
	if err != nil {
		c.Logger.Error("invitation cleanup error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]int64{
		"removed": removed,
	})
}

// SetUserRolePayload is the admin role change request body.
type SetUserRolePayload struct {
	Role string `form:"role" json:"role"`
}

// Validate will validate the payload
func (r SetUserRolePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In("member", "admin")),
	)
}

// SetUserRole changes a member's role on behalf of the admin.
func (c *HTTPController) SetUserRole(ctx router.Context) error {
	actorID, err := c.currentUserID(ctx)
	if err != nil {
		return WriteError(ctx, err)
	}

	userID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return WriteError(ctx, ErrIdentityNotFound.Clone())
	}

	payload := new(SetUserRolePayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	role, _ := ParseRole(payload.Role)

	user, err := c.Auther.SetUserRole(ctx.Context(), actorID, userID, role)
	if err != nil {
		c.Logger.Error("role change error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// SetUserActivePayload is the admin activation request body.
type SetUserActivePayload struct {
	Active *bool `form:"active" json:"active"`
}

// Validate will validate the payload
func (r SetUserActivePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Active, validation.NotNil),
	)
}

// SetUserActive activates or deactivates a member's account.
func (c *HTTPController) SetUserActive(ctx router.Context) error {
	actorID, err := c.currentUserID(ctx)
	if err != nil {
		return WriteError(ctx, err)
	}

	userID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return WriteError(ctx, ErrIdentityNotFound.Clone())
	}

	payload := new(SetUserActivePayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, "Error parsing body", err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	user, err := c.Auther.SetUserActive(ctx.Context(), actorID, userID, *payload.Active)
	if err != nil {
		c.Logger.Error("active flag change error: ", "error", err)
		return WriteError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

func (c *HTTPController) currentUserID(ctx router.Context) (uuid.UUID, error) {
	claims, err := ClaimsFromContext(ctx, c.ContextKey)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return uuid.Nil, ErrUnableToDecodeSession.Clone()
	}

	return id, nil
}

func (c *HTTPController) badRequest(ctx router.Context, msg string, err error) error {
	c.Logger.Error("identity controller parse payload: ", "error", err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": msg,
		},
	})
}

func (c *HTTPController) validationFailed(ctx router.Context, err error) error {
	c.Logger.Error("identity controller validate payload: ", "error", err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":    "Error validating payload",
			"validation": FormatValidationErrorToMap(err),
		},
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
