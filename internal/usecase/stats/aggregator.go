package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"stairs-live/internal/domain"
)

const (
	hoursPerDay = 24
	maxDayBars  = 30
)

// Summary описывает итог по всем корзинам выбранного окна.
type Summary struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// Aggregate раскладывает пожертвования по корзинам окна tr.
// Часовой пояс корзин берётся из now. Результат упорядочен хронологически.
func Aggregate(contributions []domain.Contribution, tr domain.TimeRange, now time.Time) []domain.AggregateBucket {
	filtered := filterWindow(contributions, tr, now)
	if tr == domain.TimeRange24h {
		return groupByHours(filtered, now)
	}
	return groupByDays(filtered, dayCount(tr, len(filtered)), now)
}

func filterWindow(contributions []domain.Contribution, tr domain.TimeRange, now time.Time) []domain.Contribution {
	window, ok := tr.Window()
	if !ok {
		return contributions
	}
	since := now.Add(-window)
	out := make([]domain.Contribution, 0, len(contributions))
	for _, c := range contributions {
		if c.CreatedAt.Before(since) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// groupByHours строит 24 корзины по часам сегодняшнего дня. Вклад попадает в корзину
// по часу создания, без учёта даты: вчерашние 14:00 и сегодняшние 14:00 суммируются вместе.
func groupByHours(contributions []domain.Contribution, now time.Time) []domain.AggregateBucket {
	loc := now.Location()
	y, m, d := now.Date()
	buckets := make([]domain.AggregateBucket, hoursPerDay)
	for h := 0; h < hoursPerDay; h++ {
		start := time.Date(y, m, d, h, 0, 0, 0, loc)
		buckets[h] = domain.AggregateBucket{
			Label:      start.Format("15:04"),
			RangeStart: start,
			RangeEnd:   start.Add(time.Hour),
			Total:      decimal.Zero,
		}
	}
	for _, c := range contributions {
		h := c.CreatedAt.In(loc).Hour()
		buckets[h].Total = buckets[h].Total.Add(c.Amount)
		buckets[h].Count++
	}
	return buckets
}

// groupByDays строит n суточных корзин, отсчитывая календарные даты назад от сегодня.
// Вклады с датой вне построенных корзин в сумму не входят.
func groupByDays(contributions []domain.Contribution, n int, now time.Time) []domain.AggregateBucket {
	loc := now.Location()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	buckets := make([]domain.AggregateBucket, 0, n)
	for i := 0; i < n; i++ {
		start := today.AddDate(0, 0, -i)
		buckets = append(buckets, domain.AggregateBucket{
			Label:      start.Format("Jan 2"),
			RangeStart: start,
			RangeEnd:   start.AddDate(0, 0, 1),
			Total:      decimal.Zero,
		})
	}
	reverse(buckets)

	index := make(map[civilDate]int, len(buckets))
	for i, b := range buckets {
		index[dateOf(b.RangeStart, loc)] = i
	}
	for _, c := range contributions {
		i, ok := index[dateOf(c.CreatedAt, loc)]
		if !ok {
			continue
		}
		buckets[i].Total = buckets[i].Total.Add(c.Amount)
		buckets[i].Count++
	}
	return buckets
}

func dayCount(tr domain.TimeRange, contributions int) int {
	switch tr {
	case domain.TimeRange7d:
		return 7
	case domain.TimeRange30d:
		return 30
	default:
		return min(maxDayBars, contributions)
	}
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time, loc *time.Location) civilDate {
	y, m, d := t.In(loc).Date()
	return civilDate{year: y, month: m, day: d}
}

func reverse(buckets []domain.AggregateBucket) {
	for i, j := 0, len(buckets)-1; i < j; i, j = i+1, j-1 {
		buckets[i], buckets[j] = buckets[j], buckets[i]
	}
}

// MaxTotal возвращает наибольшую сумму корзины для масштабирования столбцов, но не меньше 1.
func MaxTotal(buckets []domain.AggregateBucket) decimal.Decimal {
	maxTotal := decimal.NewFromInt(1)
	for _, b := range buckets {
		if b.Total.GreaterThan(maxTotal) {
			maxTotal = b.Total
		}
	}
	return maxTotal
}

// Summarize складывает суммы и количество по всем корзинам.
func Summarize(buckets []domain.AggregateBucket) Summary {
	s := Summary{Total: decimal.Zero}
	for _, b := range buckets {
		s.Total = s.Total.Add(b.Total)
		s.Count += b.Count
	}
	return s
}
