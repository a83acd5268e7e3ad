package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultGoalName содержит имя единственной цели сбора.
const DefaultGoalName = "default"

// DefaultGoalTarget возвращается, если цель ещё не заведена в хранилище.
var DefaultGoalTarget = decimal.NewFromInt(1_000_000_000)

// Contribution описывает одно пожертвование. После создания не изменяется.
type Contribution struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	DonorID    *string         `json:"donor_id,omitempty"`
	DonorEmail *string         `json:"donor_email,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Email возвращает email донора или пустую строку для анонимного пожертвования.
func (c Contribution) Email() string {
	if c.DonorEmail == nil {
		return ""
	}
	return *c.DonorEmail
}

// DonorName возвращает отображаемое имя донора: часть email до "@".
func (c Contribution) DonorName() string {
	email := strings.TrimSpace(c.Email())
	if email == "" {
		return "Anonymous"
	}
	if idx := strings.Index(email, "@"); idx > 0 {
		return email[:idx]
	}
	return email
}

// NewContributionParams содержит параметры создания пожертвования.
type NewContributionParams struct {
	Amount     decimal.Decimal
	DonorID    *string
	DonorEmail *string
}

// Validate проверяет инвариант amount > 0.
func (p NewContributionParams) Validate() error {
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Goal описывает целевую сумму сбора.
type Goal struct {
	Name         string          `json:"goal_name"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DefaultGoal возвращает цель по умолчанию.
func DefaultGoal() Goal {
	return Goal{Name: DefaultGoalName, TargetAmount: DefaultGoalTarget}
}

// Session описывает личность текущего зрителя. Пустой Email означает анонимную сессию.
type Session struct {
	DonorID string `json:"donor_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Owns сообщает, сделано ли пожертвование текущим зрителем.
// Зависит только от email, поэтому результат не зависит от порядка событий.
func (s Session) Owns(c Contribution) bool {
	if s.Email == "" || c.DonorEmail == nil {
		return false
	}
	return *c.DonorEmail == s.Email
}

// DonorIDPtr возвращает идентификатор донора для записи в хранилище.
func (s Session) DonorIDPtr() *string {
	if s.DonorID == "" {
		return nil
	}
	id := s.DonorID
	return &id
}

// EmailPtr возвращает email для записи в хранилище.
func (s Session) EmailPtr() *string {
	if s.Email == "" {
		return nil
	}
	email := s.Email
	return &email
}

// Completion описывает подтверждённое платёжным провайдером списание средств.
type Completion struct {
	Amount       decimal.Decimal `json:"amount"`
	PayerRef     string          `json:"payer_ref"`
	Confirmation map[string]any  `json:"confirmation,omitempty"`
}

// Position задаёт экранную позицию сообщения в процентах от ширины и высоты.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AckMessage описывает временное сообщение-благодарность на экране.
type AckMessage struct {
	ID           string       `json:"message_id"`
	Contribution Contribution `json:"contribution"`
	Position     Position     `json:"position"`
	Self         bool         `json:"self"`
	Text         string       `json:"text"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// AggregateBucket описывает слот агрегированной статистики.
type AggregateBucket struct {
	Label      string          `json:"label"`
	RangeStart time.Time       `json:"range_start"`
	RangeEnd   time.Time       `json:"range_end"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
}
