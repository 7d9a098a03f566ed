// Package signature реализует каноникализацию и генерацию подписей (Token)
// для запросов к эквайрингу и проверки входящих уведомлений.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	tokenField   = "Token"
	receiptField = "Receipt"
)

// Signer вычисляет Token по одной из схем, используемых банком.
// Схема выбирается явно операцией шлюза, а не формой payload.
// Секрет всегда дописывается в конец строки и никогда не передаётся.
type Signer struct {
	terminalKey string
	password    string
	keySort     KeySort
}

// NewSigner создаёт генератор подписей с заданными реквизитами терминала.
func NewSigner(terminalKey, password string, keySort KeySort) *Signer {
	return &Signer{
		terminalKey: terminalKey,
		password:    password,
		keySort:     keySort,
	}
}

// InitToken — подпись для SBP Init:
// SHA256(Amount + OrderId + TerminalKey + Password).
func (s *Signer) InitToken(amountCents int64, orderID string) string {
	return digest(strconv.FormatInt(amountCents, 10) + orderID + s.terminalKey + s.password)
}

// StateToken — подпись для GetState:
// SHA256(PaymentId + TerminalKey + Password).
func (s *Signer) StateToken(paymentID string) string {
	return digest(paymentID + s.terminalKey + s.password)
}

// CheckOrderToken — подпись для CheckOrder:
// SHA256(OrderId + Password + TerminalKey).
// Порядок конкатенации отличается от остальных схем и является частью
// контракта операции, нормализовывать его нельзя.
func (s *Signer) CheckOrderToken(orderID string) string {
	return digest(orderID + s.password + s.terminalKey)
}

// PayloadToken — общая подпись по всему payload: исключаются поля Token и
// Receipt, оставшиеся ключи верхнего уровня сортируются, значения рекурсивно
// сплющиваются, токены конкатенируются, в конец дописывается пароль.
// Используется для не-SBP Init.
func (s *Signer) PayloadToken(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == tokenField || k == receiptField {
			continue
		}
		keys = append(keys, k)
	}
	sortKeys(keys, s.keySort)

	var b strings.Builder
	for _, k := range keys {
		for _, piece := range Flatten(payload[k], s.keySort) {
			b.WriteString(piece)
		}
	}
	b.WriteString(s.password)

	return digest(b.String())
}

// WebhookToken вычисляет ожидаемую подпись входящего уведомления.
// Схема совпадает с PayloadToken: вложенные блоки вроде Data включаются
// в подпись, Token и Receipt исключаются.
func (s *Signer) WebhookToken(payload map[string]any) string {
	return s.PayloadToken(payload)
}

// Verify сверяет подпись уведомления с полем Token из его тела.
// Hex-представление сравнивается без учёта регистра.
func (s *Signer) Verify(payload map[string]any) bool {
	received, _ := payload[tokenField].(string)
	if received == "" {
		return false
	}
	return strings.EqualFold(s.WebhookToken(payload), received)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
