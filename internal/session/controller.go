// Package session orchestrates login, registration, and the two-factor flow,
// owns the credential store, and supervises the live connection across
// session and channel transitions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/debianrose/dumbchat/internal/conversation"
	"github.com/debianrose/dumbchat/internal/credential"
	"github.com/debianrose/dumbchat/internal/gateway"
	"github.com/debianrose/dumbchat/internal/live"
)

// State is the session lifecycle position.
type State int

const (
	// LoggedOut holds no credential.
	LoggedOut State = iota
	// LoggingIn has a login call in flight.
	LoggingIn
	// AwaitingSecondFactor has a pending 2FA challenge.
	AwaitingSecondFactor
	// Active holds a token and runs a live connection.
	Active
)

func (s State) String() string {
	switch s {
	case LoggingIn:
		return "logging_in"
	case AwaitingSecondFactor:
		return "awaiting_second_factor"
	case Active:
		return "active"
	default:
		return "logged_out"
	}
}

// ErrInvalidTransition is returned for operations not valid in the current
// session state, e.g. a second factor submitted with no pending challenge.
var ErrInvalidTransition = errors.New("session: operation not valid in current state")

// Gateway is the request/response surface the controller drives. Satisfied
// by gateway.Client.
type Gateway interface {
	Login(ctx context.Context, req gateway.LoginRequest) (gateway.LoginResponse, error)
	Register(ctx context.Context, username, password string) (gateway.BasicResponse, error)
	Channels(ctx context.Context) (gateway.ChannelsResponse, error)
	CreateChannel(ctx context.Context, name string) (gateway.CreateChannelResponse, error)
	JoinChannel(ctx context.Context, name string) (gateway.BasicResponse, error)
	Members(ctx context.Context, channel string) (gateway.MembersResponse, error)
	Messages(ctx context.Context, channel string, limit int) (gateway.MessagesResponse, error)
	SendMessage(ctx context.Context, channel, text string) (gateway.SendMessageResponse, error)
}

// Live is the persistent-connection surface the controller supervises.
// Satisfied by live.Client.
type Live interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	Connected() bool
}

// Controller drives the session state machine. All operations are safe for
// concurrent use; network failures leave the machine in its prior state.
type Controller struct {
	logger       *slog.Logger
	api          Gateway
	creds        *credential.Store
	conv         *conversation.State
	historyLimit int
	limiter      *rate.Limiter

	mu          sync.Mutex
	state       State
	username    string
	password    string
	liveClient  Live
	lastToken   string
	lastChannel string
	onStatus    func(live.Status)
}

// NewController builds a controller. historyLimit caps fetched message
// history; reconnectRate limits how fast live-connection rebuilds may happen
// (rate.Inf disables the limit).
func NewController(log *slog.Logger, api Gateway, creds *credential.Store, conv *conversation.State, historyLimit int, reconnectRate rate.Limit) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Controller{
		logger:       log.With(slog.String("component", "session")),
		api:          api,
		creds:        creds,
		conv:         conv,
		historyLimit: historyLimit,
		limiter:      rate.NewLimiter(reconnectRate, 1),
		state:        LoggedOut,
	}
}

// AttachLive wires the live client. Done post-construction because the live
// client's handlers point back at this controller.
func (c *Controller) AttachLive(l Live) {
	c.mu.Lock()
	c.liveClient = l
	c.mu.Unlock()
}

// SetStatusListener registers a callback for live connection status changes.
func (c *Controller) SetStatusListener(fn func(live.Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the username of the current or pending session.
func (c *Controller) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Login starts a session. With 2FA configured the call parks the machine in
// AwaitingSecondFactor and returns nil; complete it with SubmitSecondFactor.
// A network failure reverts to the prior state.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if c.state != LoggedOut {
		c.mu.Unlock()
		return fmt.Errorf("%w: login from %s", ErrInvalidTransition, c.state)
	}
	prior := c.state
	c.state = LoggingIn
	c.mu.Unlock()

	resp, err := c.api.Login(ctx, gateway.LoginRequest{Username: username, Password: password})
	if err != nil {
		c.setState(prior)
		return err
	}

	switch {
	case resp.Success:
		return c.activate(ctx, username, resp.Token)
	case resp.Requires2FA:
		c.creds.SetChallenge(resp.SessionID)
		c.mu.Lock()
		c.username = username
		c.password = password
		c.state = AwaitingSecondFactor
		c.mu.Unlock()
		c.logger.Info("two-factor challenge issued", slog.String("username", username))
		return nil
	default:
		c.setState(prior)
		return gateway.NewError(gateway.KindAuth, "login", errors.New(reason(resp.Error, "login failed")))
	}
}

// SubmitSecondFactor completes a pending 2FA login. The original client
// re-issues the login with the stored password and the code, correlated by
// the recorded session id; a wrong code keeps the challenge pending.
func (c *Controller) SubmitSecondFactor(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.state != AwaitingSecondFactor {
		c.mu.Unlock()
		return fmt.Errorf("%w: second factor from %s", ErrInvalidTransition, c.state)
	}
	username, password := c.username, c.password
	c.mu.Unlock()

	sessionID, err := c.creds.Challenge()
	if err != nil {
		return gateway.NewError(gateway.KindAuth, "second factor", err)
	}

	resp, err := c.api.Login(ctx, gateway.LoginRequest{
		Username:       username,
		Password:       password,
		TwoFactorToken: code,
		SessionID:      sessionID,
	})
	if err != nil {
		// Still awaiting: the challenge survives a transport failure.
		return err
	}
	if !resp.Success {
		return gateway.NewError(gateway.KindAuth, "second factor", errors.New(reason(resp.Error, "invalid code")))
	}
	return c.activate(ctx, username, resp.Token)
}

// Register creates an account. It never authenticates: on success the
// session stays (or becomes usable as) LoggedOut and the user logs in
// explicitly.
func (c *Controller) Register(ctx context.Context, username, password string) error {
	resp, err := c.api.Register(ctx, username, password)
	if err != nil {
		return err
	}
	if !resp.Success {
		return gateway.NewError(gateway.KindAuth, "register", errors.New(reason(resp.Error, "registration failed")))
	}
	return nil
}

// Logout tears the session down unconditionally: credential cleared, live
// connection closed, state LoggedOut. Purely local; no server call.
func (c *Controller) Logout() {
	c.creds.Clear()

	c.mu.Lock()
	l := c.liveClient
	c.state = LoggedOut
	c.username = ""
	c.password = ""
	c.lastToken = ""
	c.lastChannel = ""
	c.mu.Unlock()

	if l != nil {
		l.Disconnect()
	}
	c.logger.Info("logged out")
}

func (c *Controller) activate(ctx context.Context, username, token string) error {
	c.creds.SetAuthenticated(token)
	c.mu.Lock()
	c.username = username
	c.password = ""
	c.state = Active
	c.mu.Unlock()
	c.logger.Info("session active", slog.String("username", username))

	return c.Bootstrap(ctx)
}

// Bootstrap connects the live channel and loads channels, history, and
// members for the active channel. Called on activation; callable again after
// a transport hiccup.
func (c *Controller) Bootstrap(ctx context.Context) error {
	if err := c.Reconcile(ctx); err != nil {
		return err
	}
	if err := c.LoadChannels(ctx); err != nil {
		return err
	}
	return c.refreshActiveChannel(ctx)
}

// Reconcile aligns the live connection with the current (token, channel)
// pair. A repeated call with unchanged inputs and a healthy connection is a
// no-op; an actual transition tears down and rebuilds the socket.
func (c *Controller) Reconcile(ctx context.Context) error {
	token := c.creds.Token()
	channel := c.conv.ActiveChannel()

	c.mu.Lock()
	l := c.liveClient
	unchanged := token == c.lastToken && channel == c.lastChannel
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	if token == "" {
		l.Disconnect()
		c.rememberLiveInputs("", "")
		return nil
	}
	if unchanged && l.Connected() {
		return nil
	}
	if c.creds.Expired(time.Now()) {
		return gateway.NewError(gateway.KindAuth, "reconcile", errors.New("token expired; log in again"))
	}

	// Cap rebuild frequency; repeated transitions queue behind the limiter
	// instead of hammering the server.
	if err := c.limiter.Wait(ctx); err != nil {
		return gateway.NewError(gateway.KindNetwork, "reconcile", err)
	}
	if err := l.Connect(ctx, token); err != nil {
		return err
	}
	c.rememberLiveInputs(token, channel)
	return nil
}

func (c *Controller) rememberLiveInputs(token, channel string) {
	c.mu.Lock()
	c.lastToken = token
	c.lastChannel = channel
	c.mu.Unlock()
}

// LoadChannels refreshes the channel list.
func (c *Controller) LoadChannels(ctx context.Context) error {
	resp, err := c.api.Channels(ctx)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("load channels: %s", reason(resp.Error, "request rejected"))
	}
	c.conv.SetChannels(resp.Channels)
	return nil
}

// JoinChannel joins and switches to a channel: the scoped views are cleared
// before the new history and member list are fetched, and the live
// connection is reconciled for the channel transition.
func (c *Controller) JoinChannel(ctx context.Context, name string) error {
	resp, err := c.api.JoinChannel(ctx, name)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("join %q: %s", name, reason(resp.Error, "request rejected"))
	}

	c.conv.Switch(name)
	if err := c.Reconcile(ctx); err != nil {
		return err
	}
	if err := c.LoadChannels(ctx); err != nil {
		return err
	}
	return c.refreshActiveChannel(ctx)
}

// CreateChannel creates a channel and joins it.
func (c *Controller) CreateChannel(ctx context.Context, name string) error {
	resp, err := c.api.CreateChannel(ctx, name)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("create %q: %s", name, reason(resp.Error, "request rejected"))
	}
	return c.JoinChannel(ctx, resp.Channel)
}

// SendMessage posts text to the active channel and applies the response
// through the same idempotent insert the push path uses, so the broadcast
// copy of the message is a no-op when it arrives.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	channel := c.conv.ActiveChannel()
	resp, err := c.api.SendMessage(ctx, channel, text)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("send message: %s", reason(resp.Error, "request rejected"))
	}
	if resp.Message != nil {
		c.conv.InsertMessage(channel, *resp.Message)
	}
	return nil
}

// HandlePush is the live client's message handler.
func (c *Controller) HandlePush(push live.PushMessage) {
	c.conv.InsertMessage(push.Channel, push.Message)
}

// HandleStatus is the live client's status handler; forwards to the
// registered listener so a disconnection is never silent.
func (c *Controller) HandleStatus(status live.Status) {
	c.logger.Info("live status", slog.String("status", status.String()))
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(status)
	}
}

// refreshActiveChannel fetches history and members for the active channel,
// tagged with the current generation so a concurrent switch drops the result.
func (c *Controller) refreshActiveChannel(ctx context.Context) error {
	channel := c.conv.ActiveChannel()
	gen := c.conv.Generation()

	msgs, err := c.api.Messages(ctx, channel, c.historyLimit)
	if err != nil {
		return err
	}
	if msgs.Success {
		c.conv.SetHistory(gen, msgs.Messages)
	}

	members, err := c.api.Members(ctx, channel)
	if err != nil {
		return err
	}
	if members.Success {
		c.conv.SetMembers(gen, members.Members)
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func reason(serverError, fallback string) string {
	if serverError != "" {
		return serverError
	}
	return fallback
}
