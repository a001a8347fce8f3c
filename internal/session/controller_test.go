package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/debianrose/dumbchat/internal/conversation"
	"github.com/debianrose/dumbchat/internal/credential"
	"github.com/debianrose/dumbchat/internal/gateway"
	"github.com/debianrose/dumbchat/internal/live"
)

// fakeGateway scripts API behavior per endpoint.
type fakeGateway struct {
	loginFn    func(req gateway.LoginRequest) (gateway.LoginResponse, error)
	registerFn func(username, password string) (gateway.BasicResponse, error)

	channels gateway.ChannelsResponse
	members  gateway.MembersResponse
	messages map[string]gateway.MessagesResponse
	joinErr  error
	sendFn   func(channel, text string) (gateway.SendMessageResponse, error)

	loginCalls []gateway.LoginRequest
	joined     []string
	created    []string
}

func (f *fakeGateway) Login(_ context.Context, req gateway.LoginRequest) (gateway.LoginResponse, error) {
	f.loginCalls = append(f.loginCalls, req)
	if f.loginFn == nil {
		return gateway.LoginResponse{Success: true, Token: "tok"}, nil
	}
	return f.loginFn(req)
}

func (f *fakeGateway) Register(_ context.Context, username, password string) (gateway.BasicResponse, error) {
	if f.registerFn == nil {
		return gateway.BasicResponse{Success: true}, nil
	}
	return f.registerFn(username, password)
}

func (f *fakeGateway) Channels(context.Context) (gateway.ChannelsResponse, error) {
	if !f.channels.Success && f.channels.Error == "" && f.channels.Channels == nil {
		return gateway.ChannelsResponse{Success: true}, nil
	}
	return f.channels, nil
}

func (f *fakeGateway) CreateChannel(_ context.Context, name string) (gateway.CreateChannelResponse, error) {
	f.created = append(f.created, name)
	return gateway.CreateChannelResponse{Success: true, Channel: name}, nil
}

func (f *fakeGateway) JoinChannel(_ context.Context, name string) (gateway.BasicResponse, error) {
	if f.joinErr != nil {
		return gateway.BasicResponse{}, f.joinErr
	}
	f.joined = append(f.joined, name)
	return gateway.BasicResponse{Success: true}, nil
}

func (f *fakeGateway) Members(_ context.Context, channel string) (gateway.MembersResponse, error) {
	if f.members.Members == nil {
		return gateway.MembersResponse{Success: true}, nil
	}
	return f.members, nil
}

func (f *fakeGateway) Messages(_ context.Context, channel string, _ int) (gateway.MessagesResponse, error) {
	if resp, ok := f.messages[channel]; ok {
		return resp, nil
	}
	return gateway.MessagesResponse{Success: true}, nil
}

func (f *fakeGateway) SendMessage(_ context.Context, channel, text string) (gateway.SendMessageResponse, error) {
	if f.sendFn == nil {
		return gateway.SendMessageResponse{Success: true, Message: &gateway.Message{ID: "m1", Text: text}}, nil
	}
	return f.sendFn(channel, text)
}

// fakeLive records connect/disconnect calls.
type fakeLive struct {
	connected   bool
	connectErr  error
	connects    []string
	disconnects int
}

func (f *fakeLive) Connect(_ context.Context, token string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects = append(f.connects, token)
	f.connected = true
	return nil
}

func (f *fakeLive) Disconnect() {
	f.disconnects++
	f.connected = false
}

func (f *fakeLive) Connected() bool { return f.connected }

func newTestController(api *fakeGateway) (*Controller, *fakeLive, *conversation.State, *credential.Store) {
	creds := credential.NewStore()
	conv := conversation.NewState(nil, "general")
	ctrl := NewController(nil, api, creds, conv, 100, rate.Inf)
	l := &fakeLive{}
	ctrl.AttachLive(l)
	return ctrl, l, conv, creds
}

func TestLoginWithoutTwoFactor(t *testing.T) {
	api := &fakeGateway{}
	ctrl, l, _, creds := newTestController(api)

	require.NoError(t, ctrl.Login(context.Background(), "alice", "pw"))

	assert.Equal(t, Active, ctrl.State())
	assert.Equal(t, "tok", creds.Token())
	assert.Equal(t, []string{"tok"}, l.connects)
}

func TestLoginFailureStaysLoggedOut(t *testing.T) {
	api := &fakeGateway{
		loginFn: func(gateway.LoginRequest) (gateway.LoginResponse, error) {
			return gateway.LoginResponse{Success: false, Error: "invalid credentials"}, nil
		},
	}
	ctrl, l, _, creds := newTestController(api)

	err := ctrl.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, gateway.IsKind(err, gateway.KindAuth))
	assert.Contains(t, err.Error(), "invalid credentials")

	assert.Equal(t, LoggedOut, ctrl.State())
	assert.False(t, creds.IsAuthenticated())
	assert.Empty(t, l.connects)
}

func TestLoginNetworkFailureRevertsState(t *testing.T) {
	api := &fakeGateway{
		loginFn: func(gateway.LoginRequest) (gateway.LoginResponse, error) {
			return gateway.LoginResponse{}, gateway.NewError(gateway.KindNetwork, "login", errors.New("connection refused"))
		},
	}
	ctrl, _, _, _ := newTestController(api)

	err := ctrl.Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	assert.True(t, gateway.IsKind(err, gateway.KindNetwork))
	assert.Equal(t, LoggedOut, ctrl.State())
}

func TestTwoFactorFlow(t *testing.T) {
	api := &fakeGateway{
		loginFn: func(req gateway.LoginRequest) (gateway.LoginResponse, error) {
			if req.TwoFactorToken == "" {
				return gateway.LoginResponse{Requires2FA: true, SessionID: "s1"}, nil
			}
			if req.TwoFactorToken != "123456" {
				return gateway.LoginResponse{Success: false, Error: "invalid 2FA code"}, nil
			}
			return gateway.LoginResponse{Success: true, Token: "tok2"}, nil
		},
	}
	ctrl, l, _, creds := newTestController(api)
	ctx := context.Background()

	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))
	assert.Equal(t, AwaitingSecondFactor, ctrl.State())
	assert.Equal(t, credential.PendingChallenge, creds.CurrentState())

	// Wrong code: error surfaced, still awaiting.
	err := ctrl.SubmitSecondFactor(ctx, "000000")
	require.Error(t, err)
	assert.True(t, gateway.IsKind(err, gateway.KindAuth))
	assert.Equal(t, AwaitingSecondFactor, ctrl.State())

	// Correct code: active, correlated by the stored session id.
	require.NoError(t, ctrl.SubmitSecondFactor(ctx, "123456"))
	assert.Equal(t, Active, ctrl.State())
	assert.Equal(t, "tok2", creds.Token())
	assert.Equal(t, []string{"tok2"}, l.connects)

	last := api.loginCalls[len(api.loginCalls)-1]
	assert.Equal(t, "s1", last.SessionID)
	assert.Equal(t, "alice", last.Username)
	assert.Equal(t, "pw", last.Password)
}

func TestSecondFactorWithoutChallenge(t *testing.T) {
	ctrl, _, _, _ := newTestController(&fakeGateway{})
	err := ctrl.SubmitSecondFactor(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSecondFactorNetworkFailureKeepsChallenge(t *testing.T) {
	netDown := false
	api := &fakeGateway{
		loginFn: func(req gateway.LoginRequest) (gateway.LoginResponse, error) {
			if netDown {
				return gateway.LoginResponse{}, gateway.NewError(gateway.KindNetwork, "login", errors.New("timeout"))
			}
			return gateway.LoginResponse{Requires2FA: true, SessionID: "s1"}, nil
		},
	}
	ctrl, _, _, creds := newTestController(api)
	ctx := context.Background()

	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))
	netDown = true

	err := ctrl.SubmitSecondFactor(ctx, "123456")
	require.Error(t, err)
	assert.Equal(t, AwaitingSecondFactor, ctrl.State())
	assert.Equal(t, credential.PendingChallenge, creds.CurrentState())
}

func TestRegisterNeverAuthenticates(t *testing.T) {
	ctrl, l, _, creds := newTestController(&fakeGateway{})

	require.NoError(t, ctrl.Register(context.Background(), "bob", "pw"))
	assert.Equal(t, LoggedOut, ctrl.State())
	assert.False(t, creds.IsAuthenticated())
	assert.Empty(t, l.connects)
}

func TestLogoutUnconditional(t *testing.T) {
	ctrl, l, _, creds := newTestController(&fakeGateway{})
	require.NoError(t, ctrl.Login(context.Background(), "alice", "pw"))

	ctrl.Logout()

	assert.Equal(t, LoggedOut, ctrl.State())
	assert.False(t, creds.IsAuthenticated())
	assert.Equal(t, 1, l.disconnects)
	assert.False(t, l.Connected())
}

func TestReconcileNoOpWhenUnchanged(t *testing.T) {
	ctrl, l, _, _ := newTestController(&fakeGateway{})
	ctx := context.Background()
	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))
	require.Len(t, l.connects, 1)

	// Same token, same channel, healthy connection: no rebuild.
	require.NoError(t, ctrl.Reconcile(ctx))
	require.NoError(t, ctrl.Reconcile(ctx))
	assert.Len(t, l.connects, 1)
}

func TestReconcileRebuildsOnChannelSwitch(t *testing.T) {
	api := &fakeGateway{}
	ctrl, l, _, _ := newTestController(api)
	ctx := context.Background()
	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))

	require.NoError(t, ctrl.JoinChannel(ctx, "random"))
	assert.Equal(t, []string{"random"}, api.joined)
	assert.Len(t, l.connects, 2, "channel switch rebuilds the connection")
}

func TestJoinChannelSwitchesScope(t *testing.T) {
	api := &fakeGateway{
		messages: map[string]gateway.MessagesResponse{
			"general": {Success: true, Messages: []gateway.Message{{ID: "g1", Text: "in general", TS: 1}}},
			"random":  {Success: true, Messages: []gateway.Message{{ID: "r1", Text: "in random", TS: 2}}},
		},
	}
	ctrl, _, conv, _ := newTestController(api)
	ctx := context.Background()
	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))

	got := conv.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "g1", got[0].ID)

	require.NoError(t, ctrl.JoinChannel(ctx, "random"))
	assert.Equal(t, "random", conv.ActiveChannel())

	got = conv.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)

	// A late push for the old channel is dropped.
	ctrl.HandlePush(live.PushMessage{Channel: "general", Message: gateway.Message{ID: "g2", TS: 3}})
	got = conv.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestCreateChannelJoins(t *testing.T) {
	api := &fakeGateway{}
	ctrl, _, conv, _ := newTestController(api)
	ctx := context.Background()
	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))

	require.NoError(t, ctrl.CreateChannel(ctx, "newchan"))
	assert.Equal(t, []string{"newchan"}, api.created)
	assert.Equal(t, []string{"newchan"}, api.joined)
	assert.Equal(t, "newchan", conv.ActiveChannel())
}

func TestSendMessageResponseAndPushDeduplicate(t *testing.T) {
	sent := gateway.Message{ID: "m1", From: "alice", Text: "hi", TS: 1000}
	api := &fakeGateway{
		sendFn: func(channel, text string) (gateway.SendMessageResponse, error) {
			return gateway.SendMessageResponse{Success: true, Message: &sent}, nil
		},
	}
	ctrl, _, conv, _ := newTestController(api)
	ctx := context.Background()
	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))

	require.NoError(t, ctrl.SendMessage(ctx, "hi"))
	require.Len(t, conv.Messages(), 1)

	// The server broadcast arrives afterwards; same id, no duplicate.
	ctrl.HandlePush(live.PushMessage{Channel: "general", Message: sent})
	assert.Len(t, conv.Messages(), 1)

	// A push for a different channel is dropped outright.
	ctrl.HandlePush(live.PushMessage{Channel: "other", Message: gateway.Message{ID: "m2", TS: 2}})
	assert.Len(t, conv.Messages(), 1)
}

func TestStatusListenerForwarded(t *testing.T) {
	ctrl, _, _, _ := newTestController(&fakeGateway{})

	var got []live.Status
	ctrl.SetStatusListener(func(s live.Status) { got = append(got, s) })

	ctrl.HandleStatus(live.StatusConnected)
	ctrl.HandleStatus(live.StatusDisconnected)
	assert.Equal(t, []live.Status{live.StatusConnected, live.StatusDisconnected}, got)
}

func TestLoginWhileActiveRejected(t *testing.T) {
	ctrl, _, _, _ := newTestController(&fakeGateway{})
	ctx := context.Background()
	require.NoError(t, ctrl.Login(ctx, "alice", "pw"))

	err := ctrl.Login(ctx, "alice", "pw")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "logged_out", LoggedOut.String())
	assert.Equal(t, "logging_in", LoggingIn.String())
	assert.Equal(t, "awaiting_second_factor", AwaitingSecondFactor.String())
	assert.Equal(t, "active", Active.String())
}
