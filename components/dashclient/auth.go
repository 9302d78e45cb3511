package dashclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Routes the auth controller asks the embedding UI to navigate to.
const (
	RouteDashboard = "/"
	RouteLogin     = "/login"
)

const defaultResetRedirectDelay = 3 * time.Second

// FlowState is the pending/error/message triple owned by one auth flow.
// Err retains structure: errors.As against *APIError recovers field-keyed
// validation messages before any display flattening.
type FlowState struct {
	Pending bool
	Err     error
	Message string
}

// AuthControllerOptions configures the auth flows.
type AuthControllerOptions struct {
	Gateway   AuthGateway
	Session   *Session
	Telemetry Telemetry
	Logger    *zap.Logger

	// Navigate is invoked when a flow wants the UI to change screens.
	Navigate func(route string)

	// ResetRedirectDelay is how long the reset-confirm success message
	// stays on screen before navigating to login.
	ResetRedirectDelay time.Duration
}

// AuthController runs the four short-lived account flows. Each flow owns
// its own state; starting a new attempt of a flow clears only that flow.
type AuthController struct {
	opts AuthControllerOptions

	mu           sync.Mutex
	login        FlowState
	register     FlowState
	resetRequest FlowState
	resetConfirm FlowState
}

// NewAuthController builds a controller with safe defaults.
func NewAuthController(opts AuthControllerOptions) *AuthController {
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Navigate == nil {
		opts.Navigate = func(string) {}
	}
	if opts.ResetRedirectDelay <= 0 {
		opts.ResetRedirectDelay = defaultResetRedirectDelay
	}
	return &AuthController{opts: opts}
}

// Login exchanges credentials for a token, hands it to the session, and
// signals navigation to the dashboard.
func (a *AuthController) Login(ctx context.Context, username, password string) error {
	a.begin(&a.login)
	token, err := a.opts.Gateway.Login(ctx, Credentials{Username: username, Password: password})
	if err != nil {
		a.fail(&a.login, err)
		return err
	}
	if err := a.opts.Session.Login(token); err != nil {
		a.fail(&a.login, err)
		return err
	}
	a.finish(&a.login, "")
	a.opts.Telemetry.Record(ctx, "auth.login", map[string]any{"username": username})
	a.opts.Navigate(RouteDashboard)
	return nil
}

// Register creates an account without authenticating: the user is
// pointed back at the login form with a success message.
func (a *AuthController) Register(ctx context.Context, username, email, password string) error {
	a.begin(&a.register)
	err := a.opts.Gateway.Register(ctx, Registration{Username: username, Email: email, Password: password})
	if err != nil {
		a.fail(&a.register, err)
		return err
	}
	a.finish(&a.register, "Registration successful! Please log in.")
	a.opts.Telemetry.Record(ctx, "auth.register", map[string]any{"username": username})
	return nil
}

// RequestPasswordReset asks for a reset email. Whether the address exists
// is never revealed: an unknown-address response reads like success, and
// only transport or validation failures surface as errors.
func (a *AuthController) RequestPasswordReset(ctx context.Context, email string) error {
	a.begin(&a.resetRequest)
	err := a.opts.Gateway.RequestPasswordReset(ctx, email)
	if err != nil && !isUserNotFound(err) {
		a.fail(&a.resetRequest, err)
		return err
	}
	a.finish(&a.resetRequest, "Password reset link has been sent to your email.")
	return nil
}

// ConfirmPasswordReset finalizes a reset. The password match check runs
// locally before any network call; on success, navigation to login is
// scheduled after a fixed delay so the confirmation can be read.
func (a *AuthController) ConfirmPasswordReset(ctx context.Context, uid, token, newPassword, confirmPassword string) error {
	a.begin(&a.resetConfirm)
	if newPassword != confirmPassword {
		a.fail(&a.resetConfirm, ErrPasswordsDoNotMatch)
		return ErrPasswordsDoNotMatch
	}
	if err := a.opts.Gateway.ConfirmPasswordReset(ctx, uid, token, newPassword); err != nil {
		a.fail(&a.resetConfirm, err)
		return err
	}
	a.finish(&a.resetConfirm, "Password reset successful! Redirecting to login...")
	time.AfterFunc(a.opts.ResetRedirectDelay, func() {
		a.opts.Navigate(RouteLogin)
	})
	return nil
}

// LoginState returns the login flow state.
func (a *AuthController) LoginState() FlowState { return a.snapshot(&a.login) }

// RegisterState returns the registration flow state.
func (a *AuthController) RegisterState() FlowState { return a.snapshot(&a.register) }

// ResetRequestState returns the reset-request flow state.
func (a *AuthController) ResetRequestState() FlowState { return a.snapshot(&a.resetRequest) }

// ResetConfirmState returns the reset-confirm flow state.
func (a *AuthController) ResetConfirmState() FlowState { return a.snapshot(&a.resetConfirm) }

func (a *AuthController) begin(flow *FlowState) {
	a.mu.Lock()
	*flow = FlowState{Pending: true}
	a.mu.Unlock()
}

func (a *AuthController) fail(flow *FlowState, err error) {
	a.mu.Lock()
	flow.Pending = false
	flow.Err = err
	a.mu.Unlock()
	a.opts.Logger.Debug("auth flow failed", zap.Error(err))
}

func (a *AuthController) finish(flow *FlowState, message string) {
	a.mu.Lock()
	flow.Pending = false
	flow.Err = nil
	flow.Message = message
	a.mu.Unlock()
}

func (a *AuthController) snapshot(flow *FlowState) FlowState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *flow
}

func isUserNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
