package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nlopes/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGateway struct {
	mu       sync.Mutex
	posts    []string
	postErr  error
	authErr  error
	authResp *slack.AuthTestResponse
}

func (g *fakeGateway) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	if g.authErr != nil {
		return nil, g.authErr
	}
	return g.authResp, nil
}

func (g *fakeGateway) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.posts = append(g.posts, channelID)
	return channelID, "1234.5678", g.postErr
}

func (g *fakeGateway) postCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.posts)
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []Message
}

func (h *recordingHandler) Handle(ctx context.Context, m Message, r Responder) {
	h.mu.Lock()
	h.msgs = append(h.msgs, m)
	h.mu.Unlock()
	r.Reply(ctx, "ok")
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func testMsg(user, text string) *slack.MessageEvent {
	return &slack.MessageEvent{
		Msg: slack.Msg{
			Channel:   "C123",
			User:      user,
			Text:      text,
			Timestamp: "1000",
		},
	}
}

func newTestBot(t *testing.T, gw *fakeGateway, h Handler) *Bot {
	t.Helper()
	if gw.authResp == nil {
		gw.authResp = &slack.AuthTestResponse{UserID: "UBOT", User: "stacc"}
	}
	b := New(gw, h, zap.NewNop())
	require.NoError(t, b.Init(context.Background()))
	return b
}

func TestInit(t *testing.T) {
	t.Run("stores own user ID", func(t *testing.T) {
		b := newTestBot(t, &fakeGateway{}, &recordingHandler{})
		assert.Equal(t, "UBOT", b.ID())
	})

	t.Run("fails on rejected credentials", func(t *testing.T) {
		b := New(&fakeGateway{authErr: errors.New("invalid_auth")}, &recordingHandler{}, nil)
		err := b.Init(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_auth")
	})
}

func TestHandleMessageIgnoresBots(t *testing.T) {
	cases := map[string]*slack.MessageEvent{
		"bot id":       {Msg: slack.Msg{User: "U1", BotID: "B1", Text: "stacc `1 2 +`"}},
		"bot subtype":  {Msg: slack.Msg{User: "U1", SubType: "bot_message", Text: "stacc `1 2 +`"}},
		"no user":      {Msg: slack.Msg{Text: "stacc `1 2 +`"}},
		"the bot self": testMsg("UBOT", "stacc `1 2 +`"),
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			gw := &fakeGateway{}
			h := &recordingHandler{}
			b := newTestBot(t, gw, h)

			b.HandleMessage(context.Background(), event)

			assert.Equal(t, 0, h.count())
			assert.Equal(t, 0, gw.postCount())
		})
	}
}

func TestHandleMessage(t *testing.T) {
	gw := &fakeGateway{}
	h := &recordingHandler{}
	b := newTestBot(t, gw, h)

	b.HandleMessage(context.Background(), testMsg("U1", "  <@UBOT> stacc `1 &lt; 2` &amp; more "))

	require.Equal(t, 1, h.count())
	m := h.msgs[0]
	assert.Equal(t, "  <@UBOT> stacc `1 < 2` & more ", m.Text)
	assert.Equal(t, "stacc `1 < 2` & more", m.TrimmedText)
	assert.True(t, m.DirectedToBot)
	assert.Equal(t, []string{"C123"}, gw.posts)
}

func TestDeliveryFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	gw := &fakeGateway{postErr: errors.New("channel_not_found"), authResp: &slack.AuthTestResponse{UserID: "UBOT"}}
	b := New(gw, &recordingHandler{}, zap.New(core))
	require.NoError(t, b.Init(context.Background()))

	b.HandleMessage(context.Background(), testMsg("U1", "hello"))

	entries := logs.FilterMessage("delivering message").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "C123", entries[0].ContextMap()["channel"])
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := New(&fakeGateway{authResp: &slack.AuthTestResponse{UserID: "UBOT"}}, HandlerFunc(func(ctx context.Context, m Message, r Responder) {
		panic("boom")
	}), zap.New(core))
	require.NoError(t, b.Init(context.Background()))

	assert.NotPanics(t, func() {
		b.HandleMessage(context.Background(), testMsg("U1", "hello"))
	})
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestRun(t *testing.T) {
	t.Run("dispatches messages until invalid auth", func(t *testing.T) {
		gw := &fakeGateway{}
		h := &recordingHandler{}
		b := newTestBot(t, gw, h)

		events := make(chan slack.RTMEvent, 4)
		events <- slack.RTMEvent{Type: "connected", Data: &slack.ConnectedEvent{ConnectionCount: 1}}
		events <- slack.RTMEvent{Type: "message", Data: testMsg("U1", "one")}
		events <- slack.RTMEvent{Type: "message", Data: testMsg("U2", "two")}
		events <- slack.RTMEvent{Type: "invalid_auth", Data: &slack.InvalidAuthEvent{}}

		err := b.Run(context.Background(), events)
		assert.Equal(t, ErrInvalidAuth, err)
		assert.Equal(t, 2, h.count())
		assert.Equal(t, 2, gw.postCount())
	})

	t.Run("stops when context is done", func(t *testing.T) {
		b := newTestBot(t, &fakeGateway{}, &recordingHandler{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, b.Run(ctx, make(chan slack.RTMEvent)))
	})

	t.Run("stops when events are closed", func(t *testing.T) {
		b := newTestBot(t, &fakeGateway{}, &recordingHandler{})
		events := make(chan slack.RTMEvent)
		close(events)
		assert.NoError(t, b.Run(context.Background(), events))
	})
}
