// Package profiles loads permission profiles and the holiday calendar from YAML.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/security"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Document is the YAML layout of a profiles file. Tiers absent from the file keep their defaults.
type Document struct {
	Profiles map[domain.Tier]domain.PermissionProfile `yaml:"profiles"`
	Holidays []string                                 `yaml:"holidays"`
}

// Snapshot is one successfully loaded file.
type Snapshot struct {
	Profiles map[domain.Tier]domain.PermissionProfile
	Holidays map[string]struct{}
	LoadedAt time.Time
	ModTime  time.Time
}

// FileProvider serves profiles and holidays from a YAML file and can reload it at runtime.
// A failed reload keeps the previous snapshot.
type FileProvider struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	current  Snapshot
	onReload func(Snapshot)
}

// NewFileProvider loads path. An empty path serves the built-in defaults without holidays.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FileProvider{
		path:   path,
		logger: logger,
		current: Snapshot{
			Profiles: domain.DefaultProfiles(),
			Holidays: map[string]struct{}{},
			LoadedAt: time.Now(),
		},
	}
	if path == "" {
		return p, nil
	}
	clean, err := security.ValidateFilePath(path)
	if err != nil {
		return nil, fmt.Errorf("profiles path: %w", err)
	}
	p.path = clean
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// OnReload registers a callback invoked after each successful load.
func (p *FileProvider) OnReload(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = fn
}

// Profile implements domain.ProfileProvider.
func (p *FileProvider) Profile(tier domain.Tier) (domain.PermissionProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.current.Profiles[tier]
	if !ok {
		return domain.PermissionProfile{}, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, tier)
	}
	return profile, nil
}

// IsHoliday implements domain.HolidayCalendar. The date is compared in its own location.
func (p *FileProvider) IsHoliday(date time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.current.Holidays[date.Format(dateLayout)]
	return ok
}

// Snapshot returns the active snapshot.
func (p *FileProvider) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Reload re-reads the file and swaps the snapshot in atomically.
func (p *FileProvider) Reload() error {
	info, err := os.Stat(p.path)
	if err != nil {
		return fmt.Errorf("stat profiles %s: %w", p.path, err)
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read profiles %s: %w", p.path, err)
	}
	snapshot, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parse profiles %s: %w", p.path, err)
	}
	snapshot.ModTime = info.ModTime()

	p.mu.Lock()
	p.current = snapshot
	callback := p.onReload
	p.mu.Unlock()

	p.logger.Info("permission profiles loaded",
		"path", p.path,
		"tiers", len(snapshot.Profiles),
		"holidays", len(snapshot.Holidays),
	)
	if callback != nil {
		callback(snapshot)
	}
	return nil
}

// Watch polls the file every interval and reloads it when its modification time changes.
// It returns when ctx is done.
func (p *FileProvider) Watch(ctx context.Context, interval time.Duration) {
	if p.path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(p.path)
			if err != nil {
				p.logger.Warn("profiles file unavailable", "path", p.path, "error", err)
				continue
			}
			if info.ModTime().Equal(p.Snapshot().ModTime) {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.Error("profiles reload failed, keeping previous profiles", "path", p.path, "error", err)
			}
		}
	}
}

// Parse decodes a profiles document on top of the built-in defaults.
func Parse(data []byte) (Snapshot, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, err
	}

	profiles := domain.DefaultProfiles()
	var errs []error
	for key, profile := range doc.Profiles {
		tier, err := domain.ParseTier(string(key))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		profile.Tier = tier
		profiles[tier] = profile
	}

	holidays := make(map[string]struct{}, len(doc.Holidays))
	for _, h := range doc.Holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			errs = append(errs, fmt.Errorf("holiday %q: %w", h, err))
			continue
		}
		holidays[d.Format(dateLayout)] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Profiles: profiles, Holidays: holidays, LoadedAt: time.Now()}, nil
}
