package accounts

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/tessellate-io/go-accounts/middleware/csrf"
)

// RegisterAuthRoutes mounts the full account lifecycle on the router
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("login.post")

	app.Post(controller.Routes.Signup, controller.SignupPost).
		SetName("signup.post")
	app.Get(fmt.Sprintf("%s/confirmation/:key", controller.Routes.Signup), controller.SignupConfirm).
		SetName("signup-confirm.get")

	app.Post(controller.Routes.Logout, controller.LogoutPost).
		SetName("logout.post")

	app.Post(fmt.Sprintf("%s/change", controller.Routes.Password), controller.PasswordChange).
		SetName("pwd-change.post")
	app.Post(fmt.Sprintf("%s/forgot", controller.Routes.Password), controller.PasswordForgot).
		SetName("pwd-forgot.post")

	app.Get(fmt.Sprintf("%s/reset/:key", controller.Routes.Password), controller.PasswordResetShow).
		SetName("pwd-reset.get")
	app.Post(fmt.Sprintf("%s/reset/:key", controller.Routes.Password), controller.PasswordResetPost).
		SetName("pwd-reset.post")

	app.Post(controller.Routes.Token, controller.TokenPost).
		SetName("token.post")
}

type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Signup   string
	Password string
	Token    string
}

type AuthControllerViews struct {
	Login         string
	Signup        string
	PasswordReset string
	Confirmation  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Backend      *Backend
	Config       Config
	Minter       *TokenMinter
	CSRF         csrf.Config
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerBackend(backend *Backend) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Backend = backend
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerMinter(minter *TokenMinter) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Minter = minter
		return c
	}
}

func WithControllerCSRF(cfg csrf.Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.CSRF = cfg
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:    "/login",
			Logout:   "/logout",
			Signup:   "/signup",
			Password: "/password",
			Token:    "/token",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			Signup:        "signup",
			PasswordReset: "password_reset",
			Confirmation:  "confirmation",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Backend == nil {
		panic("Missing Backend in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	if c.Minter == nil {
		c.Minter = NewTokenMinter([]byte(c.Config.GetSecretKey()), c.Config.GetAppName())
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	rc := RequestFrom(ctx, a.Backend, a.Config)
	if rc.IsAuthenticated() {
		return ctx.Redirect(a.Config.GetLoginRedirect(), fiber.StatusSeeOther)
	}

	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	rc := RequestFrom(ctx, a.Backend, a.Config)
	if rc.IsAuthenticated() {
		return a.respondError(ctx, a.Views.Login, ErrAlreadyAuthenticated, nil)
	}

	form := NewForm(&LoginPayload{})
	if err := form.Bind(ctx); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.respondInvalid(ctx, a.Views.Login, form)
	}

	if !form.IsValid() {
		return a.respondInvalid(ctx, a.Views.Login, form)
	}

	if a.Debug {
		fmt.Println("======= ACCOUNTS LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(form.Payload))
		fmt.Println("=============================")
	}

	user, err := a.Backend.Authenticate(ctx.Context(), form.Payload.Identifier, form.Payload.Password)
	if err != nil {
		a.Logger.Error("login authenticate: ", "error", err)
		return a.respondError(ctx, a.Views.Login, err, form.Payload)
	}

	if err := a.Backend.Login(ctx, user); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respondSuccess(ctx, a.Config.GetLoginRedirect(), "Welcome back")
}

func (a *AuthController) SignupPost(ctx router.Context) error {
	rc := RequestFrom(ctx, a.Backend, a.Config)
	if rc.IsAuthenticated() {
		return a.respondError(ctx, a.Views.Signup, ErrAlreadyAuthenticated, nil)
	}

	form := NewForm(&CreateUserPayload{})
	if err := form.Bind(ctx); err != nil {
		a.Logger.Error("signup parse payload: ", "error", err)
		return a.respondInvalid(ctx, a.Views.Signup, form)
	}

	if !form.IsValid() {
		return a.respondInvalid(ctx, a.Views.Signup, form)
	}

	input := CreateUserInput{
		Username:  form.Payload.Username,
		Email:     form.Payload.Email,
		Password:  form.Payload.Password,
		FirstName: form.Payload.FirstName,
		LastName:  form.Payload.LastName,
		Phone:     form.Payload.Phone,
	}

	if _, err := a.Backend.CreateUser(ctx.Context(), input); err != nil {
		a.Logger.Error("signup create user: ", "error", err)
		return a.respondError(ctx, a.Views.Signup, err, form.Payload)
	}

	return a.respondSuccess(ctx, a.Config.GetLoginRedirect(), "Check your email to confirm your registration")
}

func (a *AuthController) SignupConfirm(ctx router.Context) error {
	key := ctx.Param("key", "")

	user, err := a.Backend.ConfirmRegistration(ctx.Context(), key)
	if err != nil {
		a.Logger.Error("signup confirmation: ", "error", err)
		return a.respondError(ctx, a.Views.Confirmation, err, nil)
	}

	if err := a.Backend.Login(ctx, user); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.respondSuccess(ctx, a.Config.GetLoginRedirect(), "Your account has been confirmed")
}

func (a *AuthController) LogoutPost(ctx router.Context) error {
	if err := csrf.ValidateRequest(ctx, a.CSRF); err != nil {
		return ctx.Status(fiber.StatusForbidden).SendString(err.Error())
	}

	a.Backend.Logout(ctx)
	return a.respondSuccess(ctx, "/", "You have been signed out")
}

func (a *AuthController) PasswordChange(ctx router.Context) error {
	rc := RequestFrom(ctx, a.Backend, a.Config)
	if !rc.IsAuthenticated() {
		return a.respondError(ctx, a.Views.Login, ErrNotAuthenticated, nil)
	}

	form := NewForm(&ChangePasswordPayload{})
	if err := form.Bind(ctx); err != nil {
		a.Logger.Error("password change parse payload: ", "error", err)
		return a.respondInvalid(ctx, a.Views.Login, form)
	}

	if !form.IsValid() {
		return a.respondInvalid(ctx, a.Views.Login, form)
	}

	if err := ComparePasswordAndHash(form.Payload.OldPassword, rc.User.PasswordHash); err != nil {
		form.AddFieldError("old_password", "current password does not match")
		return a.respondInvalid(ctx, a.Views.Login, form)
	}

	if err := a.Backend.SetPassword(ctx.Context(), rc.User, form.Payload.Password); err != nil {
		a.Logger.Error("password change: ", "error", err)
		return a.respondError(ctx, a.Views.Login, err, nil)
	}

	return a.respondSuccess(ctx, a.Config.GetLoginRedirect(), "Password updated")
}

func (a *AuthController) PasswordForgot(ctx router.Context) error {
	rc := RequestFrom(ctx, a.Backend, a.Config)
	if rc.IsAuthenticated() {
		return a.respondError(ctx, a.Views.PasswordReset, ErrAlreadyAuthenticated, nil)
	}

	form := NewForm(&ForgotPasswordPayload{})
	if err := form.Bind(ctx); err != nil {
		a.Logger.Error("password forgot parse payload: ", "error", err)
		return a.respondInvalid(ctx, a.Views.PasswordReset, form)
	}

	if !form.IsValid() {
		return a.respondInvalid(ctx, a.Views.PasswordReset, form)
	}

	if err := a.Backend.PasswordRecovery(ctx.Context(), form.Payload.Email); err != nil {
		a.Logger.Error("password recovery: ", "error", err)
		return a.respondError(ctx, a.Views.PasswordReset, err, form.Payload)
	}

	return a.respondSuccess(ctx, "/", "Check your email for the reset link")
}

func (a *AuthController) PasswordResetShow(ctx router.Context) error {
	key := ctx.Param("key", "")

	if _, err := a.Backend.GetUserByAuthKey(ctx.Context(), key); err != nil {
		a.Logger.Error("password reset lookup: ", "error", err)
		return a.respondError(ctx, a.Views.PasswordReset, err, nil)
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"key":    key,
	})
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	key := ctx.Param("key", "")

	form := NewForm(&PasswordPayload{})
	if err := form.Bind(ctx); err != nil {
		a.Logger.Error("password reset parse payload: ", "error", err)
		return a.respondInvalid(ctx, a.Views.PasswordReset, form)
	}

	if !form.IsValid() {
		return a.respondInvalid(ctx, a.Views.PasswordReset, form)
	}

	user, err := a.Backend.GetUserByAuthKey(ctx.Context(), key)
	if err != nil {
		a.Logger.Error("password reset lookup: ", "error", err)
		return a.respondError(ctx, a.Views.PasswordReset, err, nil)
	}

	if err := a.Backend.SetPassword(ctx.Context(), user, form.Payload.Password); err != nil {
		a.Logger.Error("password reset: ", "error", err)
		return a.respondError(ctx, a.Views.PasswordReset, err, nil)
	}

	if err := a.Backend.AuthKeyUsed(ctx.Context(), key); err != nil {
		a.Logger.Error("password reset consume key: ", "error", err)
		return a.respondError(ctx, a.Views.PasswordReset, err, nil)
	}

	return a.respondSuccess(ctx, a.Routes.Login, "Your password has been changed")
}

func (a *AuthController) TokenPost(ctx router.Context) error {
	if err := csrf.ValidateRequest(ctx, a.CSRF); err != nil {
		return ctx.Status(fiber.StatusForbidden).SendString(err.Error())
	}

	rc := RequestFrom(ctx, a.Backend, a.Config)
	if !rc.IsAuthenticated() {
		return ctx.JSON(fiber.StatusForbidden, map[string]any{
			"success": false,
			"error":   ErrNotAuthenticated.Message,
		})
	}

	token, err := a.Minter.Mint(rc.User)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= ACCOUNTS TOKEN ======")
		fmt.Println(print.MaybePrettyJSON(rc.User))
		fmt.Println("=============================")
	}

	return ctx.JSON(fiber.StatusOK, map[string]any{
		"token": token,
	})
}

// respondSuccess shapes the one success response: JSON clients get
// {success, redirect}, browsers get a flash message and a 303 redirect.
func (a *AuthController) respondSuccess(ctx router.Context, redirect, message string) error {
	if wantsHTML(ctx) {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": message,
		}).Redirect(redirect, fiber.StatusSeeOther)
	}

	return ctx.JSON(fiber.StatusOK, map[string]any{
		"success":  true,
		"redirect": redirect,
	})
}

// respondInvalid reports validation failures: field errors in the body, no
// backend call made.
func (a *AuthController) respondInvalid(ctx router.Context, view string, form interface {
	JSON() map[string]any
	Errors() map[string][]string
}) error {
	if wantsHTML(ctx) {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Error validating payload",
		}).Render(view, router.ViewContext{
			"validation": form.Errors(),
		})
	}

	return ctx.JSON(fiber.StatusOK, form.JSON())
}

// respondError maps backend failures through the error taxonomy
func (a *AuthController) respondError(ctx router.Context, view string, err error, record any) error {
	status := ErrorStatus(err)

	if wantsHTML(ctx) {
		return flash.WithError(ctx, router.ViewContext{
			"error_message": err.Error(),
		}).Status(status).Render(view, router.ViewContext{
			"errors": map[string][]string{
				GlobalErrorKey: {err.Error()},
			},
			"record": record,
		})
	}

	return ctx.JSON(status, map[string]any{
		"success": false,
		"errors": map[string][]string{
			GlobalErrorKey: {err.Error()},
		},
	})
}

func wantsHTML(ctx router.Context) bool {
	return strings.Contains(ctx.Header("Accept"), "text/html")
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
