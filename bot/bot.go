package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nlopes/slack"
	"go.uber.org/zap"
)

type (
	// Gateway is the part of the Slack client the bot needs.
	Gateway interface {
		AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
		PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	}

	// Message is an incoming Slack message as seen by handlers.
	Message struct {
		Event *slack.MessageEvent

		// Text is Event.Text with Slack's HTML entity escaping undone.
		Text string
		// TrimmedText is Text without a leading mention of the bot and
		// surrounding whitespace.
		TrimmedText string
		// DirectedToBot is true when the message starts by mentioning the bot.
		DirectedToBot bool
	}

	// Responder sends messages in response to a Message.
	Responder interface {
		// Respond posts msg to the channel (or thread) the message came from.
		Respond(ctx context.Context, msg string)
		// Reply posts msg as a threaded reply to the message.
		Reply(ctx context.Context, msg string)
	}

	// Handler handles a single message.
	Handler interface {
		Handle(ctx context.Context, m Message, r Responder)
	}

	// HandlerFunc adapts a function to a Handler.
	HandlerFunc func(ctx context.Context, m Message, r Responder)

	// Bot structure
	Bot struct {
		id      string
		name    string
		gateway Gateway
		handler Handler
		logger  *zap.Logger

		wg sync.WaitGroup
	}
)

// Handle calls f(ctx, m, r).
func (f HandlerFunc) Handle(ctx context.Context, m Message, r Responder) {
	f(ctx, m, r)
}

// ErrInvalidAuth is returned by Run when Slack rejects the bot's credentials.
var ErrInvalidAuth = errors.New("invalid slack credentials")

var slackUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

// New creates a bot that passes every message not written by a bot to h.
func New(gateway Gateway, h Handler, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		gateway: gateway,
		handler: h,
		logger:  logger,
	}
}

// Init must be called before anything else in order to log in and
// determine the bot's own user ID.
func (b *Bot) Init(ctx context.Context) error {
	b.logger.Info("Determining bot user ID")
	resp, err := b.gateway.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("authenticating with slack: %w", err)
	}
	b.id = resp.UserID
	b.name = resp.User
	b.logger.Info("Initialized bot", zap.String("name", b.name), zap.String("id", b.id))
	return nil
}

// ID returns the bot's Slack user ID, known after Init.
func (b *Bot) ID() string {
	return b.id
}

// Run dispatches RTM events until ctx is done, events is closed or Slack
// reports invalid credentials. Each message is handled in its own
// goroutine; Run waits for in-flight messages before returning.
func (b *Bot) Run(ctx context.Context, events <-chan slack.RTMEvent) error {
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := msg.Data.(type) {
			case *slack.ConnectedEvent:
				b.logger.Info("Connected to slack", zap.Int("connection_count", ev.ConnectionCount))
			case *slack.InvalidAuthEvent:
				return ErrInvalidAuth
			case *slack.RTMError:
				b.logger.Warn("RTM error", zap.Int("code", ev.Code), zap.String("msg", ev.Msg))
			case *slack.MessageEvent:
				b.wg.Add(1)
				go func() {
					defer b.wg.Done()
					// Runs are not tied to ctx: once started they finish on their own.
					b.HandleMessage(context.Background(), ev)
				}()
			default:
			}
		}
	}
}

// HandleMessage filters out messages written by bots and passes the rest to
// the handler. A panic in the handler is logged and does not propagate.
func (b *Bot) HandleMessage(ctx context.Context, event *slack.MessageEvent) {
	if b.isBotMessage(event) {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("handler panicked",
				zap.Any("panic", p),
				zap.String("channel", event.Channel),
				zap.String("ts", event.Timestamp),
			)
		}
	}()

	b.logger.Debug("got message", zap.String("channel", event.Channel), zap.String("text", event.Text))
	b.handler.Handle(ctx, b.message(event), &responder{
		gateway: b.gateway,
		event:   event,
		logger:  b.logger,
	})
}

func (b *Bot) isBotMessage(event *slack.MessageEvent) bool {
	return event.BotID != "" ||
		event.User == "" ||
		event.SubType == "bot_message" ||
		(b.id != "" && event.User == b.id)
}

func (b *Bot) message(event *slack.MessageEvent) Message {
	text := slackUnescaper.Replace(event.Text)
	m := Message{
		Event:       event,
		Text:        text,
		TrimmedText: strings.TrimSpace(text),
	}

	if b.id != "" {
		mention := "<@" + b.id + ">"
		if strings.HasPrefix(m.TrimmedText, mention) {
			m.DirectedToBot = true
			m.TrimmedText = strings.TrimSpace(strings.TrimPrefix(m.TrimmedText, mention))
		}
	}
	return m
}
