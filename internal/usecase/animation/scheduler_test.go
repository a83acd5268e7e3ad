package animation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stairs-live/internal/domain"
)

type fakePlayback struct {
	mu    sync.Mutex
	ready bool
	fail  bool
	calls []domain.Direction
}

func (f *fakePlayback) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakePlayback) SetDirection(d domain.Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("input lost")
	}
	f.calls = append(f.calls, d)
	return nil
}

func (f *fakePlayback) directions() []domain.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Direction(nil), f.calls...)
}

// request строит запрос с заданной длительностью в миллисекундах.
func request(ms int64) domain.AnimationRequest {
	seconds := decimal.New(ms, -3)
	return domain.AnimationRequest{Amount: seconds.Mul(decimal.NewFromInt(5)).Div(decimal.NewFromInt(3)), DurationSeconds: seconds}
}

func TestRequestClimbFailsWhenPlaybackNotReady(t *testing.T) {
	pb := &fakePlayback{}
	s := NewScheduler(pb, zerolog.Nop())
	defer s.Close()

	assert.False(t, s.RequestClimb(request(10)))
	assert.False(t, s.Busy())
	assert.Empty(t, pb.directions())
}

func TestRequestClimbFailsWithoutPlayback(t *testing.T) {
	s := NewScheduler(nil, zerolog.Nop())
	defer s.Close()

	assert.False(t, s.RequestClimb(request(10)))
}

func TestRequestClimbRunsFullCycle(t *testing.T) {
	pb := &fakePlayback{ready: true}
	idle := make(chan domain.AnimationRequest, 1)
	s := NewScheduler(pb, zerolog.Nop(), withIdleHook(func(r domain.AnimationRequest) { idle <- r }))
	defer s.Close()

	req := request(30)
	started := time.Now()
	require.True(t, s.RequestClimb(req))
	assert.True(t, s.Busy())
	cur, ok := s.Current()
	require.True(t, ok)
	assert.True(t, cur.DurationSeconds.Equal(req.DurationSeconds))

	select {
	case done := <-idle:
		assert.True(t, done.DurationSeconds.Equal(req.DurationSeconds))
	case <-time.After(time.Second):
		t.Fatal("подъём не завершился")
	}
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
	assert.False(t, s.Busy())
	assert.Equal(t, []domain.Direction{domain.DirectionForward, domain.DirectionNeutral}, pb.directions())
}

func TestRequestClimbWhileBusyDoesNotResetTimer(t *testing.T) {
	pb := &fakePlayback{ready: true}
	s := NewScheduler(pb, zerolog.Nop())
	defer s.Close()

	first := request(80)
	require.True(t, s.RequestClimb(first))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, s.RequestClimb(request(1000)))

	cur, ok := s.Current()
	require.True(t, ok)
	assert.True(t, cur.DurationSeconds.Equal(first.DurationSeconds), "текущий подъём не должен меняться")

	// если бы второй запрос перезапустил таймер, канал был бы занят ещё секунду
	require.Eventually(t, func() bool { return !s.Busy() }, 300*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []domain.Direction{domain.DirectionForward, domain.DirectionNeutral}, pb.directions())
}

func TestSchedulerNeverClimbsTwiceConcurrently(t *testing.T) {
	pb := &fakePlayback{ready: true}
	s := NewScheduler(pb, zerolog.Nop())
	defer s.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.RequestClimb(request(200)) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, []domain.Direction{domain.DirectionForward}, pb.directions())
}

func TestSchedulerAcceptsAgainAfterIdle(t *testing.T) {
	pb := &fakePlayback{ready: true}
	s := NewScheduler(pb, zerolog.Nop())
	defer s.Close()

	require.True(t, s.RequestClimb(request(10)))
	require.Eventually(t, func() bool { return !s.Busy() }, time.Second, 2*time.Millisecond)
	require.True(t, s.RequestClimb(request(10)))
}

func TestRequestClimbStaysIdleWhenDirectionFails(t *testing.T) {
	pb := &fakePlayback{ready: true, fail: true}
	s := NewScheduler(pb, zerolog.Nop())
	defer s.Close()

	assert.False(t, s.RequestClimb(request(10)))
	assert.False(t, s.Busy())
}

func TestCloseStopsClimb(t *testing.T) {
	pb := &fakePlayback{ready: true}
	idle := make(chan struct{}, 1)
	s := NewScheduler(pb, zerolog.Nop(), withIdleHook(func(domain.AnimationRequest) { idle <- struct{}{} }))

	require.True(t, s.RequestClimb(request(30)))
	s.Close()

	assert.False(t, s.Busy())
	assert.Equal(t, []domain.Direction{domain.DirectionForward, domain.DirectionNeutral}, pb.directions())
	select {
	case <-idle:
		t.Fatal("таймер сработал после Close")
	case <-time.After(80 * time.Millisecond):
	}
	assert.False(t, s.RequestClimb(request(10)), "после Close запросы не принимаются")
}
