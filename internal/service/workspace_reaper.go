package service

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type idleReaper interface {
	ReapIdle(now time.Time) int
}

type imageCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

// WorkspaceReaper periodically releases abandoned workspaces and prunes
// locally stored QR images.
type WorkspaceReaper struct {
	cron           *cron.Cron
	controller     idleReaper
	images         imageCleaner
	imageRetention time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewWorkspaceReaper schedules the sweep. images may be nil when QR images
// are not kept on local disk.
func NewWorkspaceReaper(schedule string, controller idleReaper, images imageCleaner, imageRetention time.Duration, logger *zap.Logger) (*WorkspaceReaper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 5m"
	}
	r := &WorkspaceReaper{
		controller:     controller,
		images:         images,
		imageRetention: imageRetention,
		logger:         logger,
		now:            time.Now,
	}
	r.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})))
	if _, err := r.cron.AddFunc(schedule, r.Sweep); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the schedule.
func (r *WorkspaceReaper) Start() {
	r.cron.Start()
	r.logger.Info("workspace reaper started", zap.Int("entries", len(r.cron.Entries())))
}

// Stop halts the schedule and waits for a running sweep.
func (r *WorkspaceReaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep runs one reaping pass.
func (r *WorkspaceReaper) Sweep() {
	released := r.controller.ReapIdle(r.now())
	removed := 0
	if r.images != nil && r.imageRetention > 0 {
		deleted, err := r.images.Cleanup(r.imageRetention)
		if err != nil {
			r.logger.Warn("qr image cleanup failed", zap.Error(err))
		}
		removed = len(deleted)
	}
	if released > 0 || removed > 0 {
		r.logger.Info("workspace sweep finished", zap.Int("released", released), zap.Int("images_removed", removed))
	}
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
