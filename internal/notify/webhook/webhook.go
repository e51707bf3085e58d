package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/crashwatch/internal/notify"
)

// Config configures the generic webhook transport.
type Config struct {
	URL       string
	Recipient string
	Headers   map[string]string
	Timeout   time.Duration
}

// Payload is the JSON body posted for text messages.
type Payload struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Format    string `json:"format"`
}

// Notifier posts notifications to an HTTP endpoint.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

func New(cfg Config, log *slog.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook: empty url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("component", "notify", "transport", "webhook"),
	}, nil
}

func (n *Notifier) SendText(ctx context.Context, text string, format notify.Format) error {
	body, err := json.Marshal(Payload{Recipient: n.cfg.Recipient, Text: text, Format: format.String()})
	if err != nil {
		return &notify.Failure{Op: notify.OpSendText, Err: err, Permanent: true}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return &notify.Failure{Op: notify.OpSendText, Err: err, Permanent: true}
	}
	req.Header.Set("Content-Type", "application/json")
	return n.do(req, notify.OpSendText)
}

func (n *Notifier) SendFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err, Permanent: true}
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("recipient", n.cfg.Recipient); err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	if err := mw.Close(); err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, &buf)
	if err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err, Permanent: true}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return n.do(req, notify.OpSendFile)
}

func (n *Notifier) do(req *http.Request, op string) error {
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return &notify.Failure{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return notify.HTTPFailure(op, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	n.log.Debug("delivered", "op", op, "status", resp.StatusCode)
	return nil
}
