package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
	"stairs-live/internal/usecase/stats"
)

// ErrClosed возвращается после остановки координатора.
var ErrClosed = errors.New("coordinator closed")

const (
	defaultRecentLimit = 5
	eventBuffer        = 64
)

var hundred = decimal.NewFromInt(100)

// Climber управляет анимацией подъёма.
type Climber interface {
	RequestClimb(req domain.AnimationRequest) bool
	Busy() bool
	Current() (domain.AnimationRequest, bool)
	Close()
}

// Messenger хранит сообщения-благодарности на экране.
type Messenger interface {
	Enqueue(c domain.Contribution, self bool) domain.AckMessage
	Active() []domain.AckMessage
	Close()
}

// Snapshot описывает то, что сейчас видит зритель.
type Snapshot struct {
	Total       decimal.Decimal          `json:"total"`
	Goal        domain.Goal              `json:"goal"`
	Progress    decimal.Decimal          `json:"progress_percent"`
	Recent      []domain.Contribution    `json:"recent"`
	Messages    []domain.AckMessage      `json:"messages"`
	Climbing    bool                     `json:"climbing"`
	Climb       *domain.AnimationRequest `json:"climb,omitempty"`
	Stale       bool                     `json:"stale"`
	LastError   string                   `json:"last_error,omitempty"`
	RefreshedAt time.Time                `json:"refreshed_at"`
}

// StatsView содержит агрегированную статистику для графика.
type StatsView struct {
	Range   domain.TimeRange         `json:"range"`
	Buckets []domain.AggregateBucket `json:"buckets"`
	Max     decimal.Decimal          `json:"max"`
	Summary stats.Summary            `json:"summary"`
}

// view хранит последние известные значения из хранилища. Заменяется только целиком.
type view struct {
	total       decimal.Decimal
	goal        domain.Goal
	recent      []domain.Contribution
	all         []domain.Contribution
	refreshedAt time.Time
}

type event struct {
	ctx        context.Context
	completion *domain.Completion
	change     *domain.ChangeEvent
	reply      chan localResult
}

type localResult struct {
	contribution domain.Contribution
	err          error
}

// Coordinator является единственной стейт-машиной между источниками пожертвований
// и потребителями: очередью сообщений, анимацией и статистикой.
type Coordinator struct {
	store    domain.ContributionStore
	feed     domain.ChangeFeed
	sessions domain.SessionSource
	climber  Climber
	messages Messenger
	log      zerolog.Logger

	recentLimit int
	loc         *time.Location
	now         func() time.Time

	events chan event
	done   chan struct{}

	mu        sync.RWMutex
	view      view
	stale     bool
	lastError error

	sub       domain.Subscription
	closeOnce sync.Once
}

// Option настраивает координатор.
type Option func(*Coordinator)

// WithRecentLimit задаёт размер списка последних пожертвований.
func WithRecentLimit(limit int) Option {
	return func(c *Coordinator) {
		if limit > 0 {
			c.recentLimit = limit
		}
	}
}

// WithLocation задаёт часовой пояс корзин статистики.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFeed подключает ленту изменений.
func WithFeed(feed domain.ChangeFeed) Option {
	return func(c *Coordinator) {
		c.feed = feed
	}
}

// New создаёт координатор.
func New(store domain.ContributionStore, sessions domain.SessionSource, climber Climber, messages Messenger, log zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		sessions:    sessions,
		climber:     climber,
		messages:    messages,
		log:         log,
		recentLimit: defaultRecentLimit,
		loc:         time.UTC,
		now:         time.Now,
		events:      make(chan event, eventBuffer),
		done:        make(chan struct{}),
		view:        view{total: decimal.Zero, goal: domain.DefaultGoal()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSelf сообщает, сделано ли пожертвование текущим зрителем.
// Чистая функция от email пожертвования и email сессии.
func IsSelf(c domain.Contribution, s domain.Session) bool {
	return s.Owns(c)
}

// Run загружает начальное состояние, подписывается на ленту и обрабатывает
// события по одному до отмены контекста. После выхода координатор закрыт.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Close()
	defer close(c.done)

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("coordinator: начальная загрузка не удалась, показываем значения по умолчанию")
	}

	if c.feed != nil {
		sub, err := c.feed.Subscribe(ctx, c.Dispatch)
		if err != nil {
			if !errors.Is(err, domain.ErrSubscription) {
				err = fmt.Errorf("%w: %w", domain.ErrSubscription, err)
			}
			c.log.Error().Err(err).Msg("coordinator: подписка на ленту не удалась, показываем данные без обновлений")
		} else {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}

	c.log.Info().Msg("coordinator: цикл событий запущен")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("coordinator: цикл событий остановлен")
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Coordinator) handle(ev event) {
	session := c.currentSession()
	switch {
	case ev.completion != nil:
		contribution, err := c.HandleLocalCompletion(ev.ctx, *ev.completion, session)
		ev.reply <- localResult{contribution: contribution, err: err}
	case ev.change != nil:
		c.HandleChange(ev.ctx, *ev.change, session)
	}
}

func (c *Coordinator) currentSession() domain.Session {
	if c.sessions == nil {
		return domain.Session{}
	}
	return c.sessions.Current()
}

// SubmitLocal ставит подтверждённый платёж в цикл событий и ждёт результата.
// Сохранение не прерывается, если вызывающий отменил контекст после постановки.
func (c *Coordinator) SubmitLocal(ctx context.Context, completion domain.Completion) (domain.Contribution, error) {
	reply := make(chan localResult, 1)
	ev := event{ctx: context.WithoutCancel(ctx), completion: &completion, reply: reply}
	select {
	case c.events <- ev:
	case <-c.done:
		return domain.Contribution{}, ErrClosed
	case <-ctx.Done():
		return domain.Contribution{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.contribution, res.err
	case <-c.done:
		return domain.Contribution{}, ErrClosed
	case <-ctx.Done():
		return domain.Contribution{}, ctx.Err()
	}
}

// Dispatch ставит событие ленты в цикл. Используется как обработчик подписки.
func (c *Coordinator) Dispatch(ctx context.Context, change domain.ChangeEvent) {
	select {
	case c.events <- event{ctx: context.WithoutCancel(ctx), change: &change}:
	case <-c.done:
	case <-ctx.Done():
		c.log.Warn().Str("kind", string(change.Kind)).Msg("coordinator: событие ленты отброшено при остановке")
	}
}

// HandleLocalCompletion обрабатывает платёж текущего зрителя: сохраняет пожертвование,
// обновляет агрегаты, сразу показывает благодарность и запрашивает подъём.
func (c *Coordinator) HandleLocalCompletion(ctx context.Context, completion domain.Completion, session domain.Session) (domain.Contribution, error) {
	params := domain.NewContributionParams{
		Amount:     completion.Amount,
		DonorID:    session.DonorIDPtr(),
		DonorEmail: session.EmailPtr(),
	}
	if err := params.Validate(); err != nil {
		return domain.Contribution{}, err
	}

	contribution, err := c.store.CreateContribution(ctx, params)
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		c.setLastError(err)
		c.log.Error().Err(err).Str("payer_ref", completion.PayerRef).Msg("coordinator: не удалось сохранить пожертвование")
		return domain.Contribution{}, err
	}
	c.setLastError(nil)
	metrics.ContributionsPersisted.Inc()
	metrics.IncContributionEvent("local", true)
	c.log.Info().
		Str("contribution_id", contribution.ID).
		Str("amount", contribution.Amount.String()).
		Str("payer_ref", completion.PayerRef).
		Msg("coordinator: пожертвование сохранено")

	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("coordinator: агрегаты не обновлены после сохранения")
	}

	c.messages.Enqueue(contribution, true)
	c.climber.RequestClimb(domain.NewAnimationRequest(contribution.Amount))
	return contribution, nil
}

// HandleChange разбирает событие ленты.
func (c *Coordinator) HandleChange(ctx context.Context, change domain.ChangeEvent, session domain.Session) {
	switch change.Kind {
	case domain.ChangeContribution:
		if change.Contribution == nil {
			c.log.Warn().Msg("coordinator: событие без пожертвования")
			return
		}
		c.HandleRemoteChange(ctx, *change.Contribution, session)
	case domain.ChangeGoal:
		c.HandleGoalChange(ctx, change.Goal)
	default:
		c.log.Warn().Str("kind", string(change.Kind)).Msg("coordinator: неизвестный тип события")
	}
}

// HandleRemoteChange обрабатывает вставку из ленты. Агрегаты обновляются всегда;
// собственные пожертвования уже показаны локально и дальше не обрабатываются.
// Чужое пожертвование показывает благодарность, а подъём запускается только при свободном канале.
func (c *Coordinator) HandleRemoteChange(ctx context.Context, contribution domain.Contribution, session domain.Session) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Str("contribution_id", contribution.ID).Msg("coordinator: агрегаты не обновлены по событию ленты")
	}

	self := IsSelf(contribution, session)
	metrics.IncContributionEvent("feed", self)
	if self {
		c.log.Debug().Str("contribution_id", contribution.ID).Msg("coordinator: эхо собственного пожертвования")
		return
	}

	c.messages.Enqueue(contribution, false)
	if c.climber.Busy() {
		metrics.IncClimb(metrics.ClimbDropped)
		c.log.Debug().Str("contribution_id", contribution.ID).Msg("coordinator: подъём занят, анимация пропущена")
		return
	}
	c.climber.RequestClimb(domain.NewAnimationRequest(contribution.Amount))
}

// HandleGoalChange применяет новую цель из ленты или перечитывает её из хранилища.
func (c *Coordinator) HandleGoalChange(ctx context.Context, goal *domain.Goal) {
	if goal == nil || !goal.TargetAmount.IsPositive() {
		fresh, err := c.store.GetGoal(ctx)
		if err != nil {
			metrics.RefreshErrors.Inc()
			c.log.Warn().Err(err).Msg("coordinator: не удалось перечитать цель")
			return
		}
		goal = &fresh
	}
	c.mu.Lock()
	c.view.goal = *goal
	c.mu.Unlock()
	c.log.Info().Str("target", goal.TargetAmount.String()).Msg("coordinator: цель обновлена")
}

// Refresh перечитывает сумму, последние пожертвования, полный список и цель.
// При любой ошибке сохраняются прежние значения целиком.
func (c *Coordinator) Refresh(ctx context.Context) error {
	next, err := c.load(ctx)
	if err != nil {
		metrics.RefreshErrors.Inc()
		c.mu.Lock()
		c.stale = true
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.view = next
	c.stale = false
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) load(ctx context.Context) (view, error) {
	total, err := c.store.SumAllAmounts(ctx)
	if err != nil {
		return view{}, fmt.Errorf("sum amounts: %w", err)
	}
	recent, err := c.store.ListRecent(ctx, c.recentLimit)
	if err != nil {
		return view{}, fmt.Errorf("list recent: %w", err)
	}
	all, err := c.store.ListAll(ctx)
	if err != nil {
		return view{}, fmt.Errorf("list all: %w", err)
	}
	goal, err := c.store.GetGoal(ctx)
	if err != nil {
		return view{}, fmt.Errorf("get goal: %w", err)
	}
	return view{total: total, goal: goal, recent: recent, all: all, refreshedAt: c.now()}, nil
}

// TestClimb запускает ручной трёхсекундный подъём.
func (c *Coordinator) TestClimb() bool {
	return c.climber.RequestClimb(domain.AnimationRequest{
		Amount:          decimal.NewFromInt(5),
		DurationSeconds: decimal.NewFromInt(3),
	})
}

// Snapshot возвращает текущее состояние экрана.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	v := c.view
	stale := c.stale
	lastErr := c.lastError
	c.mu.RUnlock()

	s := Snapshot{
		Total:       v.total,
		Goal:        v.goal,
		Progress:    Progress(v.total, v.goal),
		Recent:      append([]domain.Contribution(nil), v.recent...),
		Messages:    c.messages.Active(),
		Stale:       stale,
		RefreshedAt: v.refreshedAt,
	}
	if req, ok := c.climber.Current(); ok {
		s.Climbing = true
		s.Climb = &req
	}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}
	return s
}

// Messages возвращает сообщения-благодарности на экране.
func (c *Coordinator) Messages() []domain.AckMessage {
	return c.messages.Active()
}

// Stats пересчитывает корзины по полному списку пожертвований.
func (c *Coordinator) Stats(tr domain.TimeRange) StatsView {
	c.mu.RLock()
	all := c.view.all
	c.mu.RUnlock()

	buckets := stats.Aggregate(all, tr, c.now().In(c.loc))
	return StatsView{
		Range:   tr,
		Buckets: buckets,
		Max:     stats.MaxTotal(buckets),
		Summary: stats.Summarize(buckets),
	}
}

// Progress возвращает процент выполнения цели, не больше 100.
func Progress(total decimal.Decimal, goal domain.Goal) decimal.Decimal {
	if !goal.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(total.Div(goal.TargetAmount).Mul(hundred), hundred)
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
}

// Close отписывается от ленты и отменяет все таймеры.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sub := c.sub
		c.sub = nil
		c.mu.Unlock()
		if sub != nil {
			if err := sub.Close(); err != nil {
				c.log.Warn().Err(err).Msg("coordinator: не удалось закрыть подписку")
			}
		}
		c.climber.Close()
		c.messages.Close()
	})
}
