package bot

import (
	"context"

	"github.com/nlopes/slack"
	"go.uber.org/zap"
)

type responder struct {
	gateway Gateway
	event   *slack.MessageEvent
	logger  *zap.Logger
}

// Respond follows the message's thread, if there is one.
func (r *responder) Respond(ctx context.Context, msg string) {
	r.post(ctx, r.event.ThreadTimestamp, msg)
}

func (r *responder) Reply(ctx context.Context, msg string) {
	ts := r.event.ThreadTimestamp
	if ts == "" {
		ts = r.event.Timestamp
	}
	r.post(ctx, ts, msg)
}

// post delivers msg. Failures are logged and dropped.
func (r *responder) post(ctx context.Context, threadTS, msg string) {
	opts := []slack.MsgOption{
		slack.MsgOptionAsUser(true),
		slack.MsgOptionText(msg, false),
		slack.MsgOptionDisableLinkUnfurl(),
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, _, err := r.gateway.PostMessageContext(ctx, r.event.Channel, opts...)
	if err != nil {
		r.logger.Error("delivering message",
			zap.Error(err),
			zap.String("channel", r.event.Channel),
			zap.String("ts", r.event.Timestamp),
		)
	}
}
