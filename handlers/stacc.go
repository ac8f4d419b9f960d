package handlers

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gobridge/stacc/bot"
	"github.com/gobridge/stacc/interpreter"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Keyword must appear in a message for it to be executed.
const Keyword = "stacc"

var snippetRE = regexp.MustCompile("`([^`]*)`")

// Executor runs a snippet remotely.
type Executor interface {
	Execute(ctx context.Context, code string) (interpreter.Result, error)
}

// ShouldTrigger reports whether text asks for a snippet to be executed: it
// must contain Keyword and at least one backtick span.
func ShouldTrigger(text string) bool {
	return strings.Contains(text, Keyword) && snippetRE.MatchString(text)
}

// ExtractCode returns the text inside the first backtick span, verbatim.
// ok is false when there is no span. An empty span yields "", true.
func ExtractCode(text string) (code string, ok bool) {
	match := snippetRE.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

type stacc struct {
	exec    Executor
	logger  *zap.Logger
	metrics *Metrics
}

// Stacc executes the first backtick span of messages mentioning Keyword.
//
// The snippet is echoed to the channel, sent to exec, and the outcome is
// posted as a reply to the triggering message.
func Stacc(exec Executor, logger *zap.Logger, metrics *Metrics) bot.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return stacc{
		exec:    exec,
		logger:  logger,
		metrics: metrics,
	}
}

func (s stacc) Handle(ctx context.Context, m bot.Message, r bot.Responder) {
	if !ShouldTrigger(m.Text) {
		return
	}

	logger := s.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("channel", m.Event.Channel),
	)

	code, ok := ExtractCode(m.Text)
	if !ok || code == "" {
		s.metrics.run(outcomeNoCode)
		r.Reply(ctx, NoCodeMessage)
		return
	}

	r.Respond(ctx, Acknowledge(code))

	start := time.Now()
	res, err := s.exec.Execute(ctx, code)
	s.metrics.observeLatency(time.Since(start))

	if err != nil {
		var ierr *interpreter.Error
		if errors.As(err, &ierr) && ierr.Kind == interpreter.KindInterpreter {
			s.metrics.run(outcomeInterpreterError)
			logger.Info("interpreter rejected snippet", zap.String("error", ierr.Message))
		} else {
			s.metrics.run(outcomeTransportError)
			logger.Error("executing snippet", zap.Error(err), zap.String("code", code))
		}
		r.Reply(ctx, FormatError(err))
		return
	}

	s.metrics.run(outcomeSuccess)
	logger.Debug("executed snippet", zap.Int("prints", len(res.Prints)))
	r.Reply(ctx, Format(res))
}
