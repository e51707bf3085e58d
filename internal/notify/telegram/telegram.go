package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/crashwatch/internal/notify"
)

const DefaultBaseURL = "https://api.telegram.org"

// Config configures the Telegram Bot API transport.
type Config struct {
	Token   string
	ChatID  string
	BaseURL string // defaults to DefaultBaseURL
	Timeout time.Duration
}

// Notifier sends messages and documents to one chat through the Bot API.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

func New(cfg Config, log *slog.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("telegram: empty chat id")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("component", "notify", "transport", "telegram"),
	}, nil
}

func (n *Notifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.cfg.BaseURL, n.cfg.Token, method)
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (n *Notifier) SendText(ctx context.Context, text string, format notify.Format) error {
	msg := sendMessage{ChatID: n.cfg.ChatID, Text: text}
	if format == notify.FormatMarkdown {
		msg.ParseMode = "Markdown"
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return &notify.Failure{Op: notify.OpSendText, Err: err, Permanent: true}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint("sendMessage"), bytes.NewReader(body))
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
	if err := mw.WriteField("chat_id", n.cfg.ChatID); err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	part, err := mw.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	if err := mw.Close(); err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint("sendDocument"), &buf)
	if err != nil {
		return &notify.Failure{Op: notify.OpSendFile, Err: err, Permanent: true}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return n.do(req, notify.OpSendFile)
}

func (n *Notifier) do(req *http.Request, op string) error {
	resp, err := n.client.Do(req)
	if err != nil {
		// the URL embeds the token; do not leak it into logs
		var ue *url.Error
		if errors.As(err, &ue) {
			err = fmt.Errorf("%s %s: %w", ue.Op, op, ue.Err)
		}
		return &notify.Failure{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ar apiResponse
	_ = json.Unmarshal(b, &ar)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		desc := ar.Description
		if desc == "" {
			desc = strings.TrimSpace(string(b))
		}
		return notify.HTTPFailure(op, resp.StatusCode, desc)
	}
	if !ar.OK {
		return &notify.Failure{Op: op, Err: fmt.Errorf("telegram: %s", ar.Description), Permanent: true}
	}
	n.log.Debug("delivered", "op", op)
	return nil
}
