package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Direction задаёт значение входа direction в стейт-машине анимации.
type Direction int

const (
	// DirectionNeutral останавливает подъём.
	DirectionNeutral Direction = 0
	// DirectionForward запускает подъём по ступеням.
	DirectionForward Direction = 1
)

func (d Direction) String() string {
	if d == DirectionForward {
		return "forward"
	}
	return "neutral"
}

// MaxClimbDuration ограничивает длительность подъёма сверху, чтобы не переполнить time.Duration.
const MaxClimbDuration = time.Duration(math.MaxInt64)

var (
	climbSecondsNumerator   = decimal.NewFromInt(3)
	climbSecondsDenominator = decimal.NewFromInt(5)
	nanosPerSecond          = decimal.NewFromInt(int64(time.Second))
	maxClimbNanos           = decimal.NewFromInt(int64(MaxClimbDuration))
)

// AnimationRequest описывает запрос на подъём: одна ступень за каждую единицу суммы.
type AnimationRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	DurationSeconds decimal.Decimal `json:"duration_seconds"`
}

// NewAnimationRequest считает длительность как amount * 3 / 5 секунд.
func NewAnimationRequest(amount decimal.Decimal) AnimationRequest {
	return AnimationRequest{
		Amount:          amount,
		DurationSeconds: amount.Mul(climbSecondsNumerator).Div(climbSecondsDenominator),
	}
}

// Duration переводит длительность в time.Duration.
func (r AnimationRequest) Duration() time.Duration {
	return SecondsToDuration(r.DurationSeconds)
}

// SecondsToDuration переводит дробные секунды в time.Duration с точностью до наносекунды.
// Значения больше MaxClimbDuration обрезаются.
func SecondsToDuration(seconds decimal.Decimal) time.Duration {
	if !seconds.IsPositive() {
		return 0
	}
	nanos := seconds.Mul(nanosPerSecond)
	if nanos.GreaterThanOrEqual(maxClimbNanos) {
		return MaxClimbDuration
	}
	return time.Duration(nanos.IntPart())
}
