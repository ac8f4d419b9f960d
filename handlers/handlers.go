package handlers

import (
	"context"

	"github.com/gobridge/stacc/bot"
)

// Condition will check whether a message matches a condition.
type Condition func(bot.Message, []string) bool

// Exact will return true if Message.TrimmedText is exactly one of strs.
var Exact Condition = func(m bot.Message, strs []string) bool {
	for _, str := range strs {
		if m.TrimmedText == str {
			return true
		}
	}
	return false
}

// ProcessLinear calls handlers in order.
func ProcessLinear(hs ...bot.Handler) bot.Handler {
	return bot.HandlerFunc(func(ctx context.Context, m bot.Message, r bot.Responder) {
		for _, h := range hs {
			h.Handle(ctx, m, r)
		}
	})
}

// respond replies with response when isMatch holds for prompts.
func respond(isMatch Condition, prompts []string, response string) bot.Handler {
	return bot.HandlerFunc(func(ctx context.Context, m bot.Message, r bot.Responder) {
		if !isMatch(m, prompts) {
			return
		}
		r.Reply(ctx, response)
	})
}

// BotVersion responds to messages with the bot's version when Message.TrimmedText
// matches prompt.
func BotVersion(prompt, version string) bot.Handler {
	return respond(Exact, []string{prompt}, "My version is: "+version)
}

// Help responds with usage instructions when Message.TrimmedText matches prompt.
func Help(prompt string) bot.Handler {
	return respond(Exact, []string{prompt}, "Mention `"+Keyword+"` and put your program between backticks, "+
		"e.g. stacc `1 2 ADD PRINT`.\nOnly the first backtick span is executed.")
}
