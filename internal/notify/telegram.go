// Package notify delivers finished transcripts to Telegram.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"transcriptiond/internal/domain"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
)

// ErrResultMissing is returned when the transcript to attach is gone.
var ErrResultMissing = errors.New("result file missing")

// DeliveryError describes a failed Bot API call. It never holds the raw
// token or chat id.
type DeliveryError struct {
	Method string
	ChatID string
	Token  string
	Reason string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("telegram %s failed (chat_id=%s token=%s): %s", e.Method, e.ChatID, e.Token, e.Reason)
}

// Option customizes a Telegram notifier.
type Option func(*Telegram)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(base string) Option {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(base, "/") }
}

// Telegram sends a completion message followed by the transcript file.
type Telegram struct {
	httpClient *http.Client
	baseURL    string
	resolve    func() TelegramConfig
	logger     *slog.Logger
}

// NewTelegram builds a notifier. resolve is consulted on every delivery
// so settings changes apply without a restart.
func NewTelegram(resolve func() TelegramConfig, logger *slog.Logger, opts ...Option) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Telegram{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		resolve:    resolve,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Notify delivers the result of job. Without configuration it does nothing.
func (t *Telegram) Notify(ctx context.Context, job domain.Job, resultPath string) error {
	cfg := t.resolve()
	if !cfg.Configured() {
		t.logger.Debug("telegram not configured, skipping delivery", "job_id", job.ID)
		return nil
	}

	if err := t.SendMessage(ctx, cfg, "Transcription complete: "+job.Filename); err != nil {
		return err
	}

	if info, err := os.Stat(resultPath); err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrResultMissing, resultPath)
	}
	if err := t.SendDocument(ctx, cfg, resultPath, job.Filename); err != nil {
		return err
	}

	masked := cfg.Masked()
	t.logger.Info("telegram delivery sent", "job_id", job.ID, "chat_id", masked.ChatID, "source", cfg.Source)
	return nil
}

// SendMessage posts a plain text message.
func (t *Telegram) SendMessage(ctx context.Context, cfg TelegramConfig, text string) error {
	form := url.Values{}
	form.Set("chat_id", cfg.ChatID)
	form.Set("text", text)
	return t.call(ctx, cfg, "sendMessage", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// SendDocument uploads path as a document with the given caption.
func (t *Telegram) SendDocument(ctx context.Context, cfg TelegramConfig, path, caption string) error {
	body, contentType, err := encodeDocument(cfg.ChatID, caption, path)
	if err != nil {
		return t.deliveryError("sendDocument", cfg, err)
	}
	return t.call(ctx, cfg, "sendDocument", contentType, body)
}

func (t *Telegram) call(ctx context.Context, cfg TelegramConfig, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, cfg.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return t.deliveryError(method, cfg, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return t.deliveryError(method, cfg, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return t.deliveryError(method, cfg, &HTTPStatusError{StatusCode: resp.StatusCode})
	}
	return nil
}

func (t *Telegram) deliveryError(method string, cfg TelegramConfig, err error) error {
	masked := cfg.Masked()
	return &DeliveryError{
		Method: method,
		ChatID: masked.ChatID,
		Token:  masked.Token,
		Reason: describeError(err, cfg.Token),
	}
}

func encodeDocument(chatID, caption, path string) (*bytes.Buffer, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read document: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("caption", caption); err != nil {
		return nil, "", err
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", mimetype.Detect(content).String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
