// Package gateway предоставляет клиент для API интернет-эквайринга.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/paylink-service/internal/signature"
)

const requestTimeout = 15 * time.Second

// Error описывает неуспешный ответ банка. Сообщение банка сохраняется
// целиком для оператора; повторных попыток клиент не делает.
type Error struct {
	Op      string
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("gateway %s: [%s] %s: %s", e.Op, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("gateway %s: [%s] %s", e.Op, e.Code, e.Message)
}

// Client инкапсулирует HTTP-взаимодействие с эквайрингом.
type Client struct {
	baseURL     string
	terminalKey string
	signer      *signature.Signer
	httpClient  *http.Client
}

// NewClient создаёт клиент эквайринга с фиксированным таймаутом запросов.
func NewClient(baseURL, terminalKey string, signer *signature.Signer) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		terminalKey: terminalKey,
		signer:      signer,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// InitRequest — параметры инициации платежа.
type InitRequest struct {
	Amount      int64 // сумма в копейках
	OrderID     string
	Description string
	Email       string
	Phone       string
	// PayType выбирает схему подписи: для "SBP" используется короткая
	// формула, иначе подпись по всему payload.
	PayType string
	// Receipt отправляется банку, но в подписи не участвует.
	Receipt map[string]any
}

// InitResult — результат успешной инициации платежа.
type InitResult struct {
	PaymentID  string
	PaymentURL string
}

type initResponse struct {
	Success         bool        `json:"Success"`
	ErrorCode       string      `json:"ErrorCode"`
	Message         string      `json:"Message"`
	Details         string      `json:"Details"`
	PaymentID       json.Number `json:"PaymentId"`
	PaymentURL      string      `json:"PaymentURL"`
	ConfirmationURL string      `json:"ConfirmationURL"`
}

// InitPayment создаёт платёж и возвращает идентификатор банка и ссылку
// для оплаты. Отсутствие ссылки в успешном ответе считается ошибкой.
func (c *Client) InitPayment(ctx context.Context, req InitRequest) (*InitResult, error) {
	payload := map[string]any{
		"TerminalKey": c.terminalKey,
		"OrderId":     req.OrderID,
		"Amount":      req.Amount,
	}
	if req.PayType != "" {
		payload["PayType"] = req.PayType
	}
	if req.Description != "" {
		payload["Description"] = req.Description
	}
	if req.Email != "" {
		payload["CustomerEmail"] = req.Email
	}
	if req.Phone != "" {
		payload["CustomerPhone"] = req.Phone
	}

	if strings.EqualFold(req.PayType, "SBP") {
		payload["Token"] = c.signer.InitToken(req.Amount, req.OrderID)
	} else {
		payload["Token"] = c.signer.PayloadToken(payload)
	}

	if req.Receipt != nil {
		payload["Receipt"] = req.Receipt
	}

	var resp initResponse
	if err := c.post(ctx, "/Init", payload, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, &Error{Op: "Init", Code: resp.ErrorCode, Message: resp.Message, Details: resp.Details}
	}

	paymentURL := resp.PaymentURL
	if paymentURL == "" {
		paymentURL = resp.ConfirmationURL
	}
	if paymentURL == "" {
		return nil, &Error{Op: "Init", Code: resp.ErrorCode, Message: "bank did not return payment URL"}
	}

	return &InitResult{
		PaymentID:  resp.PaymentID.String(),
		PaymentURL: paymentURL,
	}, nil
}

type stateResponse struct {
	Success   bool   `json:"Success"`
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
	Details   string `json:"Details"`
	Status    string `json:"Status"`
}

// GetState запрашивает текущий статус платежа по идентификатору банка.
func (c *Client) GetState(ctx context.Context, paymentID string) (string, error) {
	payload := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
		"Token":       c.signer.StateToken(paymentID),
	}

	var resp stateResponse
	if err := c.post(ctx, "/GetState", payload, &resp); err != nil {
		return "", err
	}

	if !resp.Success {
		return "", &Error{Op: "GetState", Code: resp.ErrorCode, Message: resp.Message, Details: resp.Details}
	}

	return resp.Status, nil
}

type checkOrderResponse struct {
	Success   bool   `json:"Success"`
	ErrorCode string `json:"ErrorCode"`
	Message   string `json:"Message"`
	Details   string `json:"Details"`
	Payments  []struct {
		PaymentID json.Number `json:"PaymentId"`
		Status    string      `json:"Status"`
	} `json:"Payments"`
}

// CheckOrder возвращает статус последнего платежа по номеру заказа.
func (c *Client) CheckOrder(ctx context.Context, orderID string) (string, error) {
	payload := map[string]any{
		"TerminalKey": c.terminalKey,
		"OrderId":     orderID,
		"Token":       c.signer.CheckOrderToken(orderID),
	}

	var resp checkOrderResponse
	if err := c.post(ctx, "/CheckOrder", payload, &resp); err != nil {
		return "", err
	}

	if !resp.Success {
		return "", &Error{Op: "CheckOrder", Code: resp.ErrorCode, Message: resp.Message, Details: resp.Details}
	}

	if len(resp.Payments) == 0 {
		return "", &Error{Op: "CheckOrder", Code: resp.ErrorCode, Message: "no payments for order"}
	}

	return resp.Payments[len(resp.Payments)-1].Status, nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("gateway client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
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

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
