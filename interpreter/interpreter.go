// Package interpreter talks to the remote stack language interpreter.
//
// The interpreter exposes a single endpoint, POST /execute, which accepts
// {"instructions": "..."} and answers with the printed values and the final
// stack, or with {"error": "..."} and a non-2xx status.
package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultURL is used when API_URL is not set.
	DefaultURL = "http://server:8000"

	// DefaultTimeout bounds a single call to the interpreter.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 1 << 20
)

// Kind classifies a failed execution.
type Kind int

const (
	// KindTransport means the interpreter could not be reached or gave an
	// answer that could not be understood.
	KindTransport Kind = iota
	// KindInterpreter means the interpreter rejected the snippet and said why.
	KindInterpreter
)

func (k Kind) String() string {
	switch k {
	case KindInterpreter:
		return "interpreter"
	default:
		return "transport"
	}
}

// Error is returned by Execute for every failed execution.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return e.Message
}

// Result is a successful execution.
type Result struct {
	// Prints holds the printed values in emission order.
	Prints     []string
	FinalStack string
}

type request struct {
	Instructions string `json:"instructions"`
}

type response struct {
	Prints     []json.RawMessage `json:"prints"`
	FinalStack json.RawMessage   `json:"final_stack"`
}

type errorResponse struct {
	Error *string `json:"error"`
}

// Client executes snippets on the remote interpreter.
// It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
}

// New constructs a *Client. An empty baseURL falls back to DefaultURL and a
// zero timeout to DefaultTimeout.
func New(h *http.Client, baseURL string, timeout time.Duration) *Client {
	if h == nil {
		h = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    h,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// Endpoint returns the URL snippets are posted to.
func (c *Client) Endpoint() string {
	return c.baseURL + "/execute"
}

// Execute sends code to the interpreter once. Any failure is an *Error.
func (c *Client) Execute(ctx context.Context, code string) (Result, error) {
	body, err := json.Marshal(request{Instructions: code})
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequest("POST", c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Message: err.Error()}
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Add("User-Agent", "stacc Slack bot")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, c.transportError(err)
	}
	defer resp.Body.Close()

	payload, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{}, c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(payload, &e) == nil && e.Error != nil {
			return Result{}, &Error{Kind: KindInterpreter, Message: *e.Error, StatusCode: resp.StatusCode}
		}
		return Result{}, &Error{
			Kind:       KindTransport,
			Message:    fmt.Sprintf("request failed with status code %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var r response
	if err := json.Unmarshal(payload, &r); err != nil {
		return Result{}, &Error{
			Kind:       KindTransport,
			Message:    fmt.Sprintf("unparseable response from interpreter: %v", err),
			StatusCode: resp.StatusCode,
		}
	}

	res := Result{
		Prints:     make([]string, 0, len(r.Prints)),
		FinalStack: render(r.FinalStack),
	}
	for _, p := range r.Prints {
		res.Prints = append(res.Prints, render(p))
	}
	return res, nil
}

// Ping checks that the interpreter answers on its index route.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequest("GET", c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Add("User-Agent", "stacc Slack bot")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got non-200 response: %v", resp.StatusCode)
	}
	return nil
}

func (c *Client) transportError(err error) *Error {
	if isTimeout(err) {
		return &Error{Kind: KindTransport, Message: fmt.Sprintf("timed out after %s", c.timeout)}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}
	return &Error{Kind: KindTransport, Message: err.Error()}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// render returns the natural string form of a JSON value: strings without
// quotes, everything else as compact JSON. An absent value renders empty.
func render(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
