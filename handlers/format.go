package handlers

import (
	"errors"
	"strings"

	"github.com/gobridge/stacc/interpreter"
)

// NoCodeMessage is the reply when a triggering message has no usable snippet.
const NoCodeMessage = "No valid code found in the message."

// Acknowledge is posted before a snippet is executed.
func Acknowledge(code string) string {
	return "Executing: `" + code + "`"
}

// Format renders a successful execution. Printed values, if any, come first
// in a code block, followed by the final stack.
func Format(res interpreter.Result) string {
	var b strings.Builder
	b.WriteString("Results:\n")
	if len(res.Prints) > 0 {
		b.WriteString("Printed output:\n```\n")
		b.WriteString(strings.Join(res.Prints, "\n"))
		b.WriteString("\n```\n")
	}
	b.WriteString("Final stack state: ")
	b.WriteString(res.FinalStack)
	return b.String()
}

// FormatError renders a failed execution as a single error line.
func FormatError(err error) string {
	var ierr *interpreter.Error
	if errors.As(err, &ierr) {
		return "Error: " + ierr.Message
	}
	return "Error: " + err.Error()
}
