package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stairs-live/internal/domain"
)

var testNow = time.Date(2026, time.October, 16, 15, 30, 0, 0, time.UTC)

func contribution(id string, amount int64, at time.Time) domain.Contribution {
	return domain.Contribution{ID: id, Amount: decimal.NewFromInt(amount), CreatedAt: at}
}

func TestAggregate24hBuildsHourlyBuckets(t *testing.T) {
	buckets := Aggregate(nil, domain.TimeRange24h, testNow)

	require.Len(t, buckets, 24)
	for h, b := range buckets {
		assert.Equal(t, fmt.Sprintf("%02d:00", h), b.Label)
		assert.Equal(t, time.Date(2026, time.October, 16, h, 0, 0, 0, time.UTC), b.RangeStart)
		assert.Equal(t, b.RangeStart.Add(time.Hour), b.RangeEnd)
		assert.True(t, b.Total.IsZero())
		assert.Zero(t, b.Count)
	}
}

func TestAggregate24hGroupsByHourOfDay(t *testing.T) {
	contributions := []domain.Contribution{
		contribution("today", 5, time.Date(2026, time.October, 16, 14, 10, 0, 0, time.UTC)),
		// вчера в 16:00 попадает в окно 24 часов и суммируется в корзину 16:00
		contribution("yesterday", 3, time.Date(2026, time.October, 15, 16, 0, 0, 0, time.UTC)),
		contribution("same-hour", 2, time.Date(2026, time.October, 16, 14, 59, 0, 0, time.UTC)),
	}

	buckets := Aggregate(contributions, domain.TimeRange24h, testNow)

	assert.True(t, buckets[14].Total.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, 2, buckets[14].Count)
	assert.True(t, buckets[16].Total.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 1, buckets[16].Count)
}

func TestAggregate24hExcludesOlderThanWindow(t *testing.T) {
	contributions := []domain.Contribution{
		contribution("old", 100, testNow.Add(-25*time.Hour)),
		contribution("edge", 1, testNow.Add(-24*time.Hour)),
	}

	buckets := Aggregate(contributions, domain.TimeRange24h, testNow)
	summary := Summarize(buckets)

	assert.Equal(t, 1, summary.Count)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(1)))
}

func TestAggregate7dBuildsChronologicalDailyBuckets(t *testing.T) {
	contributions := []domain.Contribution{
		contribution("a", 4, testNow.Add(-time.Hour)),
		contribution("b", 6, time.Date(2026, time.October, 13, 9, 0, 0, 0, time.UTC)),
		contribution("too-old", 50, testNow.AddDate(0, 0, -8)),
	}

	buckets := Aggregate(contributions, domain.TimeRange7d, testNow)

	require.Len(t, buckets, 7)
	assert.Equal(t, "Oct 10", buckets[0].Label)
	assert.Equal(t, "Oct 16", buckets[6].Label)
	for i := 1; i < len(buckets); i++ {
		assert.True(t, buckets[i-1].RangeStart.Before(buckets[i].RangeStart))
		assert.Equal(t, buckets[i-1].RangeEnd, buckets[i].RangeStart)
	}
	assert.True(t, buckets[6].Total.Equal(decimal.NewFromInt(4)))
	assert.True(t, buckets[3].Total.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 2, Summarize(buckets).Count)
}

func TestAggregate30dBuildsThirtyBuckets(t *testing.T) {
	buckets := Aggregate([]domain.Contribution{contribution("a", 1, testNow)}, domain.TimeRange30d, testNow)

	require.Len(t, buckets, 30)
	assert.Equal(t, "Sep 17", buckets[0].Label)
	assert.Equal(t, 1, buckets[29].Count)
}

func TestAggregateAllCapsBucketsByContributionCount(t *testing.T) {
	contributions := []domain.Contribution{
		contribution("a", 1, testNow),
		contribution("b", 2, testNow.AddDate(0, 0, -1)),
		// три пожертвования дают три корзины, поэтому десятидневное выпадает из агрегата
		contribution("c", 3, testNow.AddDate(0, 0, -10)),
	}

	buckets := Aggregate(contributions, domain.TimeRangeAll, testNow)

	require.Len(t, buckets, 3)
	assert.Equal(t, []string{"Oct 14", "Oct 15", "Oct 16"}, labels(buckets))
	summary := Summarize(buckets)
	assert.Equal(t, 2, summary.Count)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(3)))
}

func TestAggregateAllCapsAtThirty(t *testing.T) {
	var contributions []domain.Contribution
	for i := 0; i < 45; i++ {
		contributions = append(contributions, contribution(fmt.Sprint(i), 1, testNow))
	}

	buckets := Aggregate(contributions, domain.TimeRangeAll, testNow)

	require.Len(t, buckets, 30)
	assert.Equal(t, 45, buckets[29].Count)
}

func TestAggregateAllEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, domain.TimeRangeAll, testNow))
}

func TestAggregateAllRoundTripsTotal(t *testing.T) {
	var contributions []domain.Contribution
	sum := decimal.Zero
	for i := 0; i < 12; i++ {
		amount := int64(i + 1)
		contributions = append(contributions, contribution(fmt.Sprint(i), amount, testNow.Add(-time.Duration(i)*time.Hour)))
		sum = sum.Add(decimal.NewFromInt(amount))
	}

	summary := Summarize(Aggregate(contributions, domain.TimeRangeAll, testNow))

	assert.True(t, summary.Total.Equal(sum), "ожидали %s, получили %s", sum, summary.Total)
	assert.Equal(t, len(contributions), summary.Count)
}

func TestAggregateUsesLocationOfNow(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	now := time.Date(2026, time.October, 16, 8, 0, 0, 0, loc)
	// 22:30 UTC 15 октября в Токио уже 16 октября
	c := contribution("tz", 9, time.Date(2026, time.October, 15, 22, 30, 0, 0, time.UTC))

	days := Aggregate([]domain.Contribution{c}, domain.TimeRange7d, now)
	assert.Equal(t, 1, days[6].Count)

	hours := Aggregate([]domain.Contribution{c}, domain.TimeRange24h, now)
	assert.Equal(t, 1, hours[7].Count)
}

func TestMaxTotalFloorsAtOne(t *testing.T) {
	assert.True(t, MaxTotal(nil).Equal(decimal.NewFromInt(1)))

	buckets := []domain.AggregateBucket{
		{Total: decimal.RequireFromString("0.5")},
		{Total: decimal.NewFromInt(12)},
		{Total: decimal.NewFromInt(3)},
	}
	assert.True(t, MaxTotal(buckets).Equal(decimal.NewFromInt(12)))
}

func labels(buckets []domain.AggregateBucket) []string {
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Label)
	}
	return out
}
