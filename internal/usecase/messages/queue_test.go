package messages

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stairs-live/internal/domain"
)

func strPtr(s string) *string { return &s }

func donation(id string, amount int64, email string) domain.Contribution {
	c := domain.Contribution{ID: id, Amount: decimal.NewFromInt(amount), CreatedAt: time.Now()}
	if email != "" {
		c.DonorEmail = strPtr(email)
	}
	return c
}

func TestEnqueueBuildsMessage(t *testing.T) {
	fixed := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	q := NewQueue(zerolog.Nop(),
		WithTTL(time.Hour),
		WithClock(func() time.Time { return fixed }),
		WithPicker(func(int) int { return 2 }),
	)
	defer q.Close()

	msg := q.Enqueue(donation("c1", 10, "b@y.com"), false)

	assert.Contains(t, msg.ID, "c1-")
	assert.Equal(t, DefaultPositions[2], msg.Position)
	assert.Equal(t, fixed, msg.CreatedAt)
	assert.Equal(t, fixed.Add(time.Hour), msg.ExpiresAt)
	assert.False(t, msg.Self)
	assert.Equal(t, "b helped NuNu climb 10 stairs closer to heaven! ✨", msg.Text)
	assert.Equal(t, []domain.AckMessage{msg}, q.Active())
}

func TestEnqueueSameContributionTwiceGivesDistinctIDs(t *testing.T) {
	fixed := time.Now()
	q := NewQueue(zerolog.Nop(), WithTTL(time.Hour), WithClock(func() time.Time { return fixed }))
	defer q.Close()

	c := donation("dup", 1, "")
	first := q.Enqueue(c, false)
	second := q.Enqueue(c, false)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, len(q.Active()))
}

func TestPositionsAreFromConfiguredSet(t *testing.T) {
	slots := []domain.Position{{X: 1, Y: 1}, {X: 2, Y: 2}}
	q := NewQueue(zerolog.Nop(), WithTTL(time.Hour), WithPositions(slots))
	defer q.Close()

	for i := 0; i < 50; i++ {
		msg := q.Enqueue(donation("p", 1, ""), false)
		assert.Contains(t, slots, msg.Position)
	}
}

func TestMessageExpiresAfterTTL(t *testing.T) {
	q := NewQueue(zerolog.Nop(), WithTTL(30*time.Millisecond))
	defer q.Close()

	msg := q.Enqueue(donation("c1", 1, ""), true)
	require.Equal(t, 1, len(q.Active()))

	require.Eventually(t, func() bool { return len(q.Active()) == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, time.Now().Before(msg.ExpiresAt), "сообщение удалено раньше срока")
}

func TestExpiryRemovesOnlyOwnMessage(t *testing.T) {
	q := NewQueue(zerolog.Nop(), WithTTL(40*time.Millisecond))
	defer q.Close()

	first := q.Enqueue(donation("a", 1, ""), false)
	time.Sleep(25 * time.Millisecond)
	second := q.Enqueue(donation("b", 1, ""), false)

	require.Eventually(t, func() bool { return len(q.Active()) == 1 }, time.Second, 2*time.Millisecond)
	active := q.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.NotEqual(t, first.ID, active[0].ID)
}

func TestEveryMessageExpiresExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	var expired atomic.Int32
	q := NewQueue(zerolog.Nop(),
		WithTTL(20*time.Millisecond),
		withExpireHook(func(m domain.AckMessage) {
			mu.Lock()
			seen[m.ID]++
			mu.Unlock()
			expired.Add(1)
		}),
	)
	defer q.Close()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(donation("burst", 1, ""), false)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return expired.Load() == n }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, len(q.Active()))
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, n)
	for id, times := range seen {
		assert.Equal(t, 1, times, "сообщение %s удалено %d раз", id, times)
	}
}

func TestActiveSortedByExpiry(t *testing.T) {
	base := time.Now()
	var tick atomic.Int64
	q := NewQueue(zerolog.Nop(),
		WithTTL(time.Hour),
		WithClock(func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }),
	)
	defer q.Close()

	a := q.Enqueue(donation("a", 1, ""), false)
	b := q.Enqueue(donation("b", 1, ""), false)
	c := q.Enqueue(donation("c", 1, ""), false)

	active := q.Active()
	require.Len(t, active, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{active[0].ID, active[1].ID, active[2].ID})
}

func TestCloseStopsTimers(t *testing.T) {
	var expired atomic.Int32
	q := NewQueue(zerolog.Nop(),
		WithTTL(20*time.Millisecond),
		withExpireHook(func(domain.AckMessage) { expired.Add(1) }),
	)
	q.Enqueue(donation("a", 1, ""), false)
	q.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, expired.Load())
	assert.Zero(t, len(q.Active()))

	q.Enqueue(donation("b", 1, ""), false)
	assert.Zero(t, len(q.Active()), "после Close очередь не принимает сообщения")
}

func TestThankYouText(t *testing.T) {
	cases := []struct {
		name string
		c    domain.Contribution
		self bool
		want string
	}{
		{"свой, одна ступень", donation("1", 1, "a@x.com"), true, "Thanks for helping NuNu climb 1 stair closer to heaven! 🎉"},
		{"свой, несколько", donation("2", 5, "a@x.com"), true, "Thanks for helping NuNu climb 5 stairs closer to heaven! 🎉"},
		{"чужой", donation("3", 2, "bob@y.com"), false, "bob helped NuNu climb 2 stairs closer to heaven! ✨"},
		{"аноним", donation("4", 1, ""), false, "Anonymous helped NuNu climb 1 stair closer to heaven! ✨"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ThankYouText(tc.c, tc.self))
		})
	}
}
