package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
)

const (
	defaultPollInterval = 15 * time.Second

	pollTriggerTick   = "tick"
	pollTriggerManual = "manual"
)

type attendanceAPI interface {
	GroupedAttendance(ctx context.Context, filter models.GroupedAttendanceFilter) ([]models.AttendanceGroup, error)
}

// Ticker is the subset of time.Ticker the poller depends on.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct{ *time.Ticker }

func (t timeTicker) Chan() <-chan time.Time { return t.C }

// NewTimeTicker is the production TickerFactory.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// PollResult describes the outcome of one poll.
type PollResult struct {
	Outcome  string
	Sequence uint64
	Count    int
}

// RosterPoller keeps the live roster of one active session. At most one
// request is in flight; results older than the applied one or arriving after
// Stop are discarded.
type RosterPoller struct {
	api       attendanceAPI
	filter    models.GroupedAttendanceFilter
	sessionID string
	interval  time.Duration
	newTicker TickerFactory
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time

	inFlight atomic.Bool
	stopped  atomic.Bool
	seq      atomic.Uint64

	mu         sync.RWMutex
	roster     models.Roster
	appliedSeq uint64
	lastErr    error

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	polls     sync.WaitGroup
}

// RosterPollerOptions configures a poller.
type RosterPollerOptions struct {
	Interval  time.Duration
	NewTicker TickerFactory
	Cache     *CacheService
	Metrics   *MetricsService
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewRosterPoller builds a poller for session.
func NewRosterPoller(api attendanceAPI, session *models.QRSession, opts RosterPollerOptions) *RosterPoller {
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RosterPoller{
		api: api,
		filter: models.GroupedAttendanceFilter{
			Scope:     session.Scope,
			TeacherID: session.TeacherID,
			CollegeID: session.CollegeID,
		},
		sessionID: session.SessionID,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With(zap.String("session_id", session.SessionID)),
		now:       opts.Now,
		roster:    models.Roster{SessionID: session.SessionID, Records: []models.ScanRecord{}},
		done:      make(chan struct{}),
	}
}

// Start polls once immediately and then on every tick until Stop. Requests
// run with ctx values but are not cancelled by Stop.
func (p *RosterPoller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		requestCtx := context.WithoutCancel(ctx)
		ticker := p.newTicker(p.interval)

		p.spawn(requestCtx)
		go func() {
			defer close(p.done)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-ticker.Chan():
					if p.stopped.Load() {
						return
					}
					p.spawn(requestCtx)
				}
			}
		}()
	})
}

func (p *RosterPoller) spawn(ctx context.Context) {
	p.polls.Add(1)
	go func() {
		defer p.polls.Done()
		_, _ = p.poll(ctx, pollTriggerTick)
	}()
}

// Refresh runs a manual poll through the same guard as the ticker. A refresh
// while another poll is in flight is skipped without a request.
func (p *RosterPoller) Refresh(ctx context.Context) (PollResult, error) {
	return p.poll(ctx, pollTriggerManual)
}

// Stop halts the ticker. It does not wait for in-flight requests; their
// results are discarded. Stop is idempotent.
func (p *RosterPoller) Stop() models.Roster {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		if p.cancel != nil {
			p.cancel()
			<-p.done
		}
	})
	return p.Roster()
}

// Wait blocks until every spawned poll has returned. Used by tests and shutdown.
func (p *RosterPoller) Wait() {
	p.polls.Wait()
}

// Roster returns a copy of the last applied roster.
func (p *RosterPoller) Roster() models.Roster {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.roster
	out.Records = append([]models.ScanRecord(nil), p.roster.Records...)
	return out
}

// LastError returns the error of the most recent failed poll, cleared by the
// next applied one.
func (p *RosterPoller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *RosterPoller) poll(ctx context.Context, trigger string) (PollResult, error) {
	if p.stopped.Load() {
		p.metrics.RecordPoll(trigger, PollOutcomeDiscarded, 0)
		return PollResult{Outcome: PollOutcomeDiscarded}, nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.RecordPoll(trigger, PollOutcomeSkipped, 0)
		return PollResult{Outcome: PollOutcomeSkipped}, nil
	}
	defer p.inFlight.Store(false)

	seq := p.seq.Add(1)
	start := time.Now()
	groups, err := p.api.GroupedAttendance(ctx, p.filter)
	p.metrics.ObserveUpstream("grouped_attendance", err, time.Since(start))
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.metrics.RecordPoll(trigger, PollOutcomeFailed, 0)
		p.logger.Warn("roster poll failed", zap.Uint64("sequence", seq), zap.String("trigger", trigger), zap.Error(err))
		return PollResult{Outcome: PollOutcomeFailed, Sequence: seq}, upstreamError(err, "failed to refresh attendance")
	}

	observedAt := p.now()
	records := models.FlattenGroups(groups, observedAt)
	result := p.apply(seq, records, observedAt)
	p.metrics.RecordPoll(trigger, result.Outcome, result.Count)
	if result.Outcome == PollOutcomeApplied {
		p.cache.Set(ctx, rosterCacheKey(p.sessionID), p.Roster(), 0)
	} else {
		p.logger.Debug("roster poll result dropped", zap.Uint64("sequence", seq), zap.String("outcome", result.Outcome))
	}
	return result, nil
}

// apply replaces the roster with the result of poll seq. The in-flight guard
// already serialises polls, so a result older than the applied one cannot
// arrive through poll; the sequence check keeps the roster from regressing if
// that guard is ever relaxed.
func (p *RosterPoller) apply(seq uint64, records []models.ScanRecord, observedAt time.Time) PollResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped.Load() {
		return PollResult{Outcome: PollOutcomeDiscarded, Sequence: seq, Count: p.roster.Count}
	}
	if seq <= p.appliedSeq {
		return PollResult{Outcome: PollOutcomeStale, Sequence: seq, Count: p.roster.Count}
	}
	p.appliedSeq = seq
	p.lastErr = nil
	p.roster = models.Roster{
		SessionID:       p.sessionID,
		Records:         records,
		Count:           len(records),
		Sequence:        seq,
		LastRefreshedAt: observedAt,
	}
	return PollResult{Outcome: PollOutcomeApplied, Sequence: seq, Count: len(records)}
}

func rosterCacheKey(sessionID string) string {
	return "roster:" + sessionID
}
