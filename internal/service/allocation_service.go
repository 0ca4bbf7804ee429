package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/models"
	"github.com/noah-isme/qr-attendance-gateway/internal/repository"
	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
)

type allocationAPI interface {
	TeacherAllocations(ctx context.Context, teacherID string) (*models.AllocatedPrograms, error)
	TimeSlots(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error)
}

// AllocationService serves the teacher's allocated programs and timetable slots.
type AllocationService struct {
	api     allocationAPI
	cache   *CacheService
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewAllocationService constructs the service. cache may be nil.
func NewAllocationService(api allocationAPI, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{api: api, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

func allocationCacheKey(teacherID string) string {
	return "allocations:" + teacherID
}

// Allocations returns the teacher's allocations, served from cache when
// possible. The flag reports a cache hit.
func (s *AllocationService) Allocations(ctx context.Context, teacherID string) (*models.AllocatedPrograms, bool, error) {
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}

	key := allocationCacheKey(teacherID)
	var cached models.AllocatedPrograms
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	start := time.Now()
	programs, err := s.api.TeacherAllocations(ctx, teacherID)
	s.metrics.ObserveUpstream("teacher_allocations", err, time.Since(start))
	if err != nil {
		s.logger.Warn("fetch teacher allocations failed", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, false, upstreamError(err, "failed to load teacher allocations")
	}
	if programs == nil {
		programs = &models.AllocatedPrograms{}
	}
	s.cache.Set(ctx, key, programs, s.ttl)
	return programs, false, nil
}

// Refresh drops the cached allocations of a teacher.
func (s *AllocationService) Refresh(ctx context.Context, teacherID string) {
	s.cache.Delete(ctx, allocationCacheKey(teacherID))
}

// TimeSlots lists the timetable slots for the filter.
func (s *AllocationService) TimeSlots(ctx context.Context, filter models.TimeSlotFilter) ([]models.TimeSlot, error) {
	if strings.TrimSpace(filter.TeacherID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	start := time.Now()
	slots, err := s.api.TimeSlots(ctx, filter)
	s.metrics.ObserveUpstream("time_slots", err, time.Since(start))
	if err != nil {
		return nil, upstreamError(err, "failed to load time slots")
	}
	if slots == nil {
		slots = []models.TimeSlot{}
	}
	return slots, nil
}

// Label resolves display names for a subject from the teacher's allocations.
// Lookup failures yield empty labels.
func (s *AllocationService) Label(ctx context.Context, teacherID, subjectID string) (subjectName, divisionName string) {
	programs, _, err := s.Allocations(ctx, teacherID)
	if err != nil {
		return "", ""
	}
	alloc, ok := programs.FindSubject(subjectID)
	if !ok {
		return "", ""
	}
	return alloc.SubjectName, alloc.DivisionName
}

// upstreamError converts a college API failure into a typed error carrying the
// server supplied message when there is one.
func upstreamError(err error, fallback string) error {
	msg := repository.UpstreamMessage(err)
	if msg == "" {
		msg = fallback
	}
	return appErrors.WrapAs(appErrors.ErrUpstream, err, msg)
}
