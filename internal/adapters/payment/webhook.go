package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stairs-live/internal/domain"
)

// ErrNotCaptured возвращается для уведомлений о платежах, которые ещё не списаны.
var ErrNotCaptured = errors.New("payment is not captured")

var capturedStatuses = map[string]struct{}{
	"":          {},
	"COMPLETED": {},
	"CAPTURED":  {},
	"SUCCEEDED": {},
	"SUCCESS":   {},
	"PAID":      {},
	"ACCEPTED":  {},
}

// Notification описывает уведомление платёжного провайдера о списании.
type Notification struct {
	Event     string
	ID        string
	CaptureID string
	OrderID   string
	Status    string
	Amount    string
	Currency  string
	Raw       map[string]any
}

// ParseNotification разбирает уведомление. Поддерживаются детали захвата заказа
// (purchase_units) и плоские уведомления с полями amount/status.
func ParseNotification(data []byte) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Notification{}, fmt.Errorf("decode webhook: %w", err)
	}
	n := Notification{Raw: raw}
	n.Event = firstString(raw, "event", "event_type", "eventType")

	body := raw
	if resource := firstMap(raw, "resource", "payload", "data"); resource != nil {
		body = resource
	}
	n.ID = firstString(body, "id", "orderId", "order_id")
	n.Status = strings.ToUpper(firstString(body, "status"))
	n.OrderID = firstString(body, "orderId", "order_id")

	if unit := firstElem(body, "purchase_units"); unit != nil {
		n.Amount, n.Currency = amountOf(unit)
		if payments := firstMap(unit, "payments"); payments != nil {
			if capture := firstElem(payments, "captures"); capture != nil {
				n.CaptureID = firstString(capture, "id")
				if n.Amount == "" {
					n.Amount, n.Currency = amountOf(capture)
				}
			}
		}
	}
	if n.Amount == "" {
		n.Amount, n.Currency = amountOf(body)
	}
	return n, nil
}

func amountOf(m map[string]any) (string, string) {
	value := firstString(m, "amount")
	currency := firstString(m, "currency", "currency_code")
	if value == "" {
		if amountMap := firstMap(m, "amount"); amountMap != nil {
			value = firstString(amountMap, "value", "amount")
			currency = firstString(amountMap, "currency_code", "currency")
		}
	}
	return value, currency
}

// Captured сообщает, подтверждено ли списание.
func (n Notification) Captured() bool {
	_, ok := capturedStatuses[n.Status]
	return ok
}

// IdempotencyKey возвращает ключ, по которому отсекаются повторные доставки.
func (n Notification) IdempotencyKey() string {
	if n.CaptureID != "" {
		return n.CaptureID
	}
	if n.ID != "" {
		return n.ID
	}
	return n.OrderID
}

// Completion переводит уведомление в событие локального платежа.
// Если провайдер не прислал сумму, используется фиксированная сумма кнопки.
func (n Notification) Completion(fixed decimal.Decimal) (domain.Completion, error) {
	if !n.Captured() {
		return domain.Completion{}, fmt.Errorf("%w: status %s", ErrNotCaptured, n.Status)
	}
	amount := fixed
	if n.Amount != "" {
		parsed, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(n.Amount), " ", ""))
		if err != nil {
			return domain.Completion{}, fmt.Errorf("parse amount: %w", err)
		}
		amount = parsed
	}
	if !amount.IsPositive() {
		return domain.Completion{}, domain.ErrInvalidAmount
	}
	ref := n.IdempotencyKey()
	if ref == "" {
		ref = uuid.NewString()
	}
	return domain.Completion{Amount: amount, PayerRef: ref, Confirmation: n.Metadata()}, nil
}

// Metadata возвращает копию исходного уведомления.
func (n Notification) Metadata() map[string]any {
	meta := make(map[string]any, len(n.Raw))
	for k, v := range n.Raw {
		meta[k] = v
	}
	return meta
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if v, ok := m[key]; ok {
			switch value := v.(type) {
			case string:
				if value != "" {
					return value
				}
			case json.Number:
				return value.String()
			case float64:
				return strconv.FormatFloat(value, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if mv, ok := v.(map[string]any); ok {
				return mv
			}
		}
	}
	return nil
}

func firstElem(m map[string]any, key string) map[string]any {
	list, ok := m[key].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	elem, _ := list[0].(map[string]any)
	return elem
}
