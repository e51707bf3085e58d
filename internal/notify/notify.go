package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Format selects how a text message is rendered by the transport.
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

func (f Format) String() string {
	if f == FormatMarkdown {
		return "markdown"
	}
	return "plain"
}

// Notifier delivers messages to the single configured recipient.
type Notifier interface {
	SendText(ctx context.Context, text string, format Format) error
	SendFile(ctx context.Context, path string) error
}

// Op names used in Failure.
const (
	OpSendText = "send_text"
	OpSendFile = "send_file"
)

// Failure reports a delivery that did not succeed.
type Failure struct {
	Op  string
	Err error
	// Permanent marks failures that retrying cannot fix (bad request, auth).
	Permanent bool
}

func (f *Failure) Error() string { return fmt.Sprintf("notify %s: %v", f.Op, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// StatusError is returned by HTTP transports for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// HTTPFailure builds a Failure for a non-2xx response. 4xx responses other
// than 408 and 429 are permanent.
func HTTPFailure(op string, code int, body string) *Failure {
	permanent := code >= 400 && code < 500 && code != 408 && code != 429
	return &Failure{Op: op, Err: &StatusError{Code: code, Body: body}, Permanent: permanent}
}

// LogNotifier writes notifications to a slog logger instead of sending them.
type LogNotifier struct {
	Recipient string
	Logger    *slog.Logger
}

func NewLogNotifier(recipient string, log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{Recipient: recipient, Logger: log.With("component", "notify", "transport", "log")}
}

func (n *LogNotifier) SendText(ctx context.Context, text string, format Format) error {
	n.Logger.InfoContext(ctx, "notification", "recipient", n.Recipient, "format", format.String(), "text", text)
	return nil
}

func (n *LogNotifier) SendFile(ctx context.Context, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return &Failure{Op: OpSendFile, Err: err, Permanent: true}
	}
	n.Logger.InfoContext(ctx, "notification file", "recipient", n.Recipient, "path", path, "bytes", st.Size())
	return nil
}

// Bold wraps s in a legacy-Markdown bold entity. Escapes are not allowed
// inside an entity, so a literal '*' closes the entity, is escaped outside
// it, and reopens it. Other delimiters are literal inside bold.
func Bold(s string) string {
	return "*" + strings.ReplaceAll(s, "*", `*\**`) + "*"
}
