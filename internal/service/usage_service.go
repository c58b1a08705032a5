package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/repository"
	"github.com/rs/zerolog"
)

// UsageService folds process snapshots into per-day usage records
type UsageService struct {
	usage   *repository.UsageRepository
	aliases map[string]string
	now     func() time.Time
	log     zerolog.Logger
}

func NewUsageService(usage *repository.UsageRepository, aliases map[string]string, now func() time.Time, log zerolog.Logger) *UsageService {
	if now == nil {
		now = time.Now
	}
	return &UsageService{usage: usage, aliases: aliases, now: now, log: log}
}

// IngestSnapshot records every normalized name for today and returns the
// recomputed software count. Ingesting the same snapshot again leaves the
// final state unchanged.
func (s *UsageService) IngestSnapshot(ctx context.Context, deviceID string, processes []string) (int64, error) {
	if processes == nil {
		return 0, validationError("processes must be an array")
	}

	now := s.now().UTC()
	date := model.DayOf(now)

	for _, name := range NormalizeProcesses(processes, s.aliases) {
		if err := s.usage.Touch(ctx, deviceID, name, date, now); err != nil {
			s.log.Error().Err(err).
				Str("device_id", deviceID).
				Str("software", name).
				Msg("failed to record software usage")
		}
	}

	count, err := s.usage.CountForDay(ctx, deviceID, date)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	if err := s.usage.UpsertSummary(ctx, deviceID, date, count); err != nil {
		return 0, fmt.Errorf("update daily summary: %w", err)
	}
	return count, nil
}

// NormalizeProcesses trims and case-folds names, maps them through aliases,
// drops empties and removes duplicates, keeping first-seen order
func NormalizeProcesses(processes []string, aliases map[string]string) []string {
	seen := make(map[string]struct{}, len(processes))
	names := make([]string, 0, len(processes))

	for _, p := range processes {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" {
			continue
		}
		name := key
		if display, ok := aliases[key]; ok {
			name = display
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
