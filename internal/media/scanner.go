package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/logging"
	"cgmanager/internal/services"
)

// Executor sends a command to the engine. *caspar.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, cmd amcp.Command) ([]amcp.Response, error)
}

// RefreshResult summarizes one catalogue rebuild.
type RefreshResult struct {
	Items   int       `json:"items"`
	Removed int64     `json:"removed"`
	Skipped int       `json:"skipped"`
	At      time.Time `json:"at"`
}

// Scanner rebuilds the catalogue from the engine's media listing.
type Scanner struct {
	exec   Executor
	store  *Store
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last RefreshResult
}

// NewScanner creates a scanner writing into store.
func NewScanner(exec Executor, store *Store, logger *slog.Logger) *Scanner {
	return &Scanner{
		exec:   exec,
		store:  store,
		logger: logging.NewComponentLogger(logger, "media"),
		now:    time.Now,
	}
}

// Refresh asks the engine for its listing and replaces the catalogue.
// Concurrent calls are serialized.
func (s *Scanner) Refresh(ctx context.Context) (RefreshResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	responses, err := s.exec.Execute(ctx, amcp.Cls())
	if err != nil {
		return RefreshResult{}, fmt.Errorf("list media: %w", err)
	}
	if len(responses) == 0 {
		return RefreshResult{}, services.Wrap(services.ErrEngine, "media", "list media", "engine returned no listing", nil)
	}

	items, parseErrs := ParseListing(responses[0].Data)
	for _, perr := range parseErrs {
		logging.WarnWithContext(s.logger, "skipping media listing line", "media_parse_failed",
			logging.Error(perr),
			logging.String(logging.FieldImpact, "the clip is missing from the catalogue"),
			logging.String(logging.FieldErrorHint, "check the file name for unusual characters"))
	}

	at := s.now().UTC()
	removed, err := s.store.Replace(ctx, items, at)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("store media listing: %w", err)
	}

	result := RefreshResult{Items: len(items), Removed: removed, Skipped: len(parseErrs), At: at}
	s.last = result
	s.logger.Info("media catalogue refreshed",
		logging.Int("items", result.Items),
		logging.Int64("removed", result.Removed),
		logging.Int("skipped", result.Skipped))
	return result, nil
}

// Last returns the result of the most recent successful refresh.
func (s *Scanner) Last() RefreshResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run refreshes every interval until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(s.logger, "periodic media refresh failed", "media_refresh_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "catalogue may be out of date"),
					logging.String(logging.FieldErrorHint, "check the engine connection"))
			}
		}
	}
}
