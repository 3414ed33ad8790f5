package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"venture-plan-server/internal/domain"
	"venture-plan-server/internal/metrics"
	"venture-plan-server/internal/repository"
	"venture-plan-server/pkg/plandoc"

	"github.com/rs/zerolog"
)

const maxLabelLength = 120

type VersionConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	// CreateRetries bounds attempts when another writer takes the same number.
	CreateRetries int
}

func DefaultVersionConfig() VersionConfig {
	return VersionConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		CreateRetries:   3,
	}
}

type VersionService struct {
	versions repository.VersionRepository
	ventures repository.VentureRepository
	events   EventPublisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cfg      VersionConfig
	locks    *VentureLocks
	now      func() time.Time
}

// NewVersionService builds the version manager. locks must be the same set the
// VentureService uses so checkpoints and live-state writes never interleave;
// nil allocates a private set.
func NewVersionService(
	versions repository.VersionRepository,
	ventures repository.VentureRepository,
	locks *VentureLocks,
	events EventPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg VersionConfig,
) *VersionService {
	defaults := DefaultVersionConfig()
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = defaults.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaults.MaxPageSize
	}
	if cfg.CreateRetries <= 0 {
		cfg.CreateRetries = defaults.CreateRetries
	}
	if locks == nil {
		locks = NewVentureLocks()
	}

	return &VersionService{
		versions: versions,
		ventures: ventures,
		events:   events,
		metrics:  m,
		logger:   logger.With().Str("component", "versions").Logger(),
		cfg:      cfg,
		locks:    locks,
		now:      time.Now,
	}
}

// CreateVersion checkpoints snapshot as the venture's next version. A nil
// snapshot checkpoints the venture's live state.
func (s *VersionService) CreateVersion(ctx context.Context, userID, ventureID string, snapshot plandoc.Value, label string) (*domain.VersionRecord, error) {
	label = strings.TrimSpace(label)
	if utf8.RuneCountInString(label) > maxLabelLength {
		return nil, validationError("label exceeds %d characters", maxLabelLength)
	}

	if userID == "" {
		return nil, ErrUnauthenticated
	}

	unlock := s.locks.lock(ventureID)
	defer unlock()

	venture, err := s.authorize(ctx, userID, ventureID, true)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		snapshot = venture.State.Value()
	}

	return s.insertNext(ctx, userID, venture.ID, snapshot, label)
}

// insertNext stores snapshot under the next free number. The caller holds the
// venture's lock.
func (s *VersionService) insertNext(ctx context.Context, userID, ventureID string, snapshot plandoc.Value, label string) (*domain.VersionRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.CreateRetries; attempt++ {
		start := time.Now()
		latest, err := s.versions.LatestVersionNumber(ctx, ventureID)
		s.metrics.ObserveStore("latest_version_number", start)
		if err != nil {
			return nil, err
		}

		start = time.Now()
		record, err := s.versions.InsertVersion(ctx, &domain.VersionRecordInput{
			VentureID:     ventureID,
			VersionNumber: latest + 1,
			Label:         label,
			Snapshot:      snapshot,
			CreatedBy:     userID,
			CreatedAt:     s.now().UTC(),
		})
		s.metrics.ObserveStore("insert_version", start)

		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			s.logger.Warn().
				Str("venture_id", ventureID).
				Int64("version", latest+1).
				Int("attempt", attempt).
				Msg("version number taken by another writer, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.VersionCreated()
		s.logger.Info().
			Str("venture_id", ventureID).
			Int64("version", record.VersionNumber).
			Str("user_id", userID).
			Msg("version created")

		publish(s.events, domain.VentureEvent{
			Type:          domain.EventVersionCreated,
			VentureID:     ventureID,
			ActorID:       userID,
			VersionID:     record.ID,
			VersionNumber: record.VersionNumber,
			Label:         record.Label,
			At:            record.CreatedAt,
		})

		return record, nil
	}

	return nil, fmt.Errorf("create version after %d attempts: %w", s.cfg.CreateRetries, lastErr)
}

// ListVersions returns live versions newest first. limit <= 0 selects the
// default page size.
func (s *VersionService) ListVersions(ctx context.Context, userID, ventureID string, limit int) ([]*domain.VersionRecord, error) {
	if _, err := s.authorize(ctx, userID, ventureID, false); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}

	start := time.Now()
	versions, err := s.versions.ListVersions(ctx, ventureID, limit)
	s.metrics.ObserveStore("list_versions", start)
	if err != nil {
		return nil, err
	}

	if versions == nil {
		versions = []*domain.VersionRecord{}
	}
	return versions, nil
}

func (s *VersionService) GetVersion(ctx context.Context, userID, versionID string) (*domain.VersionRecord, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	record, err := s.findLive(ctx, versionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.authorize(ctx, userID, record.VentureID, false); err != nil {
		return nil, err
	}

	return record, nil
}

// DeleteVersion tombstones a version. Only its creator may delete it.
func (s *VersionService) DeleteVersion(ctx context.Context, userID, versionID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}

	record, err := s.findLive(ctx, versionID)
	if err != nil {
		return err
	}

	if record.CreatedBy != userID {
		return ErrForbidden
	}

	start := time.Now()
	err = s.versions.DeleteVersion(ctx, versionID)
	s.metrics.ObserveStore("delete_version", start)
	if err != nil {
		return err
	}

	s.metrics.VersionDeleted()
	s.logger.Info().
		Str("venture_id", record.VentureID).
		Int64("version", record.VersionNumber).
		Str("user_id", userID).
		Msg("version deleted")

	publish(s.events, domain.VentureEvent{
		Type:          domain.EventVersionDeleted,
		VentureID:     record.VentureID,
		ActorID:       userID,
		VersionID:     record.ID,
		VersionNumber: record.VersionNumber,
		At:            s.now().UTC(),
	})

	return nil
}

func (s *VersionService) CompareVersions(before, after plandoc.Value) []plandoc.Diff {
	diffs := plandoc.Compare(before, after)
	s.metrics.ObserveDiff(len(diffs))
	return diffs
}

// CompareStored diffs two stored versions of the same venture.
func (s *VersionService) CompareStored(ctx context.Context, userID, fromID, toID string) ([]plandoc.Diff, error) {
	from, err := s.GetVersion(ctx, userID, fromID)
	if err != nil {
		return nil, err
	}

	to, err := s.GetVersion(ctx, userID, toID)
	if err != nil {
		return nil, err
	}

	if from.VentureID != to.VentureID {
		return nil, validationError("versions belong to different ventures")
	}

	return s.CompareVersions(from.Snapshot.Value(), to.Snapshot.Value()), nil
}

// CompareWithLive diffs a stored version against its venture's live state.
func (s *VersionService) CompareWithLive(ctx context.Context, userID, versionID string) ([]plandoc.Diff, error) {
	record, err := s.GetVersion(ctx, userID, versionID)
	if err != nil {
		return nil, err
	}

	venture, err := s.loadVenture(ctx, record.VentureID)
	if err != nil {
		return nil, err
	}

	return s.CompareVersions(record.Snapshot.Value(), venture.State.Value()), nil
}

func (s *VersionService) FormatDiff(d plandoc.Diff) string {
	return plandoc.FormatDiff(d)
}

// RestoreVersion checkpoints the live state and then overwrites it with the
// target snapshot. The venture is read, checkpointed and written under its
// lock, so no live-state update can land between checkpoint and overwrite.
// If the checkpoint fails nothing is changed. If the write fails after the
// checkpoint a *PartialRestoreError is returned.
func (s *VersionService) RestoreVersion(ctx context.Context, userID, ventureID, versionID string) (*domain.RestoreResult, error) {
	if userID == "" {
		s.metrics.Restore(metrics.RestoreFailed)
		return nil, ErrUnauthenticated
	}

	unlock := s.locks.lock(ventureID)
	defer unlock()

	venture, err := s.authorize(ctx, userID, ventureID, true)
	if err != nil {
		s.metrics.Restore(metrics.RestoreFailed)
		return nil, err
	}

	target, err := s.findLive(ctx, versionID)
	if err != nil {
		s.metrics.Restore(metrics.RestoreFailed)
		return nil, err
	}
	if target.VentureID != venture.ID {
		s.metrics.Restore(metrics.RestoreFailed)
		return nil, fmt.Errorf("version %s is not part of venture %s: %w", versionID, ventureID, ErrNotFound)
	}

	label := fmt.Sprintf("Before restoring version %d", target.VersionNumber)
	checkpoint, err := s.insertNext(ctx, userID, venture.ID, venture.State.Value(), label)
	if err != nil {
		s.metrics.Restore(metrics.RestoreFailed)
		return nil, fmt.Errorf("failed to checkpoint live state: %w", err)
	}

	start := time.Now()
	err = s.ventures.UpdateState(ctx, venture.ID, target.Snapshot.Value())
	s.metrics.ObserveStore("update_state", start)
	if err != nil {
		s.metrics.Restore(metrics.RestorePartial)
		s.logger.Error().
			Err(err).
			Str("venture_id", venture.ID).
			Int64("version", target.VersionNumber).
			Int64("checkpoint", checkpoint.VersionNumber).
			Str("user_id", userID).
			Msg("restore failed after checkpoint")
		return nil, &PartialRestoreError{Checkpoint: checkpoint, Target: target, Err: err}
	}

	s.metrics.Restore(metrics.RestoreOK)
	s.logger.Info().
		Str("venture_id", venture.ID).
		Int64("version", target.VersionNumber).
		Int64("checkpoint", checkpoint.VersionNumber).
		Str("user_id", userID).
		Msg("version restored")

	publish(s.events, domain.VentureEvent{
		Type:          domain.EventVersionRestored,
		VentureID:     venture.ID,
		ActorID:       userID,
		VersionID:     target.ID,
		VersionNumber: target.VersionNumber,
		Label:         target.Label,
		At:            s.now().UTC(),
	})

	return &domain.RestoreResult{Checkpoint: checkpoint, Restored: target}, nil
}

func (s *VersionService) findLive(ctx context.Context, versionID string) (*domain.VersionRecord, error) {
	start := time.Now()
	record, err := s.versions.FindVersionByID(ctx, versionID)
	s.metrics.ObserveStore("find_version", start)
	if err != nil {
		return nil, err
	}
	if record.IsDeleted() {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	return record, nil
}

func (s *VersionService) loadVenture(ctx context.Context, ventureID string) (*domain.Venture, error) {
	start := time.Now()
	venture, err := s.ventures.FindByID(ctx, ventureID)
	s.metrics.ObserveStore("find_venture", start)
	return venture, err
}

func (s *VersionService) authorize(ctx context.Context, userID, ventureID string, write bool) (*domain.Venture, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	venture, err := s.loadVenture(ctx, ventureID)
	if err != nil {
		return nil, err
	}

	allowed := venture.CanRead(userID)
	if write {
		allowed = venture.CanWrite(userID)
	}
	if !allowed {
		return nil, ErrUnauthorized
	}

	return venture, nil
}
