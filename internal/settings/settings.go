// Package settings validates and serves per-owner preferences.
package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/example/studybot/internal/apperrors"
	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/pkg/models"
)

// Store persists owner settings
type Store interface {
	Ensure(ctx context.Context, ownerID int64, defaultTZ string) (models.OwnerSettings, error)
	ListOwners(ctx context.Context) ([]int64, error)
	SetTimezone(ctx context.Context, ownerID int64, tz string) error
	SetRemindersEnabled(ctx context.Context, ownerID int64, enabled bool) error
	SetWeeklySummary(ctx context.Context, ownerID int64, day time.Weekday, hhmm string) error
}

// Service wraps the store with validation and a default timezone
type Service struct {
	store     Store
	defaultTZ string
}

func NewService(store Store, defaultTZ string) *Service {
	return &Service{store: store, defaultTZ: defaultTZ}
}

// Get returns the owner's settings, creating defaults on first use
func (s *Service) Get(ctx context.Context, ownerID int64) (models.OwnerSettings, error) {
	return s.store.Ensure(ctx, ownerID, s.defaultTZ)
}

// Owners lists every owner that has settings
func (s *Service) Owners(ctx context.Context) ([]int64, error) {
	return s.store.ListOwners(ctx)
}

// Location returns the owner's timezone
func (s *Service) Location(ctx context.Context, ownerID int64) (*time.Location, error) {
	st, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return clock.Location(st.Timezone)
}

// SetTimezone stores tz after checking it is a known IANA name
func (s *Service) SetTimezone(ctx context.Context, ownerID int64, tz string) (*time.Location, error) {
	loc, err := clock.Location(tz)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, ownerID); err != nil {
		return nil, err
	}
	if err := s.store.SetTimezone(ctx, ownerID, loc.String()); err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *Service) SetRemindersEnabled(ctx context.Context, ownerID int64, enabled bool) error {
	if _, err := s.Get(ctx, ownerID); err != nil {
		return err
	}
	return s.store.SetRemindersEnabled(ctx, ownerID, enabled)
}

// SetWeeklySummary sets the weekday and local HH:MM of the weekly summary
func (s *Service) SetWeeklySummary(ctx context.Context, ownerID int64, day time.Weekday, hhmm string) error {
	h, m, err := clock.ParseHHMM(hhmm)
	if err != nil {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidClockTime, hhmm)
	}
	if _, err := s.Get(ctx, ownerID); err != nil {
		return err
	}
	return s.store.SetWeeklySummary(ctx, ownerID, day, fmt.Sprintf("%02d:%02d", h, m))
}
