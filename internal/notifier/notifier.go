// Package notifier отправляет уведомления оператору через Telegram Bot API.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message — одно уведомление оператору. AttachmentPath опционален и
// указывает на локальный файл, который отправляется документом.
type Message struct {
	ChatID         int64
	Text           string
	AttachmentPath string
}

// Client инкапсулирует вызовы Telegram Bot API. Доставка выполняется
// по принципу fire-and-forget: ошибки логируются и не возвращаются,
// основной поток обработки заказа их не ждёт.
type Client struct {
	baseURL    string
	token      string
	logger     *zap.Logger
	httpClient *http.Client
}

// NewClient создаёт клиент Telegram Bot API.
// baseURL по умолчанию — https://api.telegram.org.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify отправляет сообщение и, если задан AttachmentPath, документ.
// Ошибки доставки только логируются.
func (c *Client) Notify(ctx context.Context, msg Message) {
	if c == nil || c.token == "" {
		return
	}

	if err := c.sendMessage(ctx, msg.ChatID, msg.Text); err != nil {
		c.logger.Warn("notification send failed",
			zap.Int64("chatID", msg.ChatID),
			zap.Error(err),
		)
		return
	}

	if msg.AttachmentPath != "" {
		if err := c.sendDocument(ctx, msg.ChatID, msg.AttachmentPath); err != nil {
			c.logger.Warn("notification attachment send failed",
				zap.Int64("chatID", msg.ChatID),
				zap.String("path", msg.AttachmentPath),
				zap.Error(err),
			)
		}
	}
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) sendDocument(ctx context.Context, chatID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}

	part, err := mw.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
