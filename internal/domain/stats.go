package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeRange задаёт окно статистики.
type TimeRange string

const (
	TimeRange24h TimeRange = "24h"
	TimeRange7d  TimeRange = "7d"
	TimeRange30d TimeRange = "30d"
	TimeRangeAll TimeRange = "all"
)

// TimeRanges перечисляет поддерживаемые окна в порядке отображения.
var TimeRanges = []TimeRange{TimeRange24h, TimeRange7d, TimeRange30d, TimeRangeAll}

// ParseTimeRange разбирает значение из запроса. Пустая строка означает 24h.
func ParseTimeRange(raw string) (TimeRange, error) {
	switch tr := TimeRange(strings.ToLower(strings.TrimSpace(raw))); tr {
	case "":
		return TimeRange24h, nil
	case TimeRange24h, TimeRange7d, TimeRange30d, TimeRangeAll:
		return tr, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeRange, raw)
	}
}

// Window возвращает длину окна фильтрации. Для all второй результат false.
func (r TimeRange) Window() (time.Duration, bool) {
	switch r {
	case TimeRange24h:
		return 24 * time.Hour, true
	case TimeRange7d:
		return 7 * 24 * time.Hour, true
	case TimeRange30d:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
