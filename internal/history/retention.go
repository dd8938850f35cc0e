package history

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetentionPolicy returns how many days of history a user keeps.
type RetentionPolicy interface {
	RetentionDays(ctx context.Context, userID string) (int, error)
}

// RetentionFunc adapts a function to [RetentionPolicy].
type RetentionFunc func(ctx context.Context, userID string) (int, error)

// RetentionDays implements [RetentionPolicy].
func (f RetentionFunc) RetentionDays(ctx context.Context, userID string) (int, error) {
	return f(ctx, userID)
}

// DefaultStaleAfter is how long an attempt may stay processing before the
// sweeper closes it as failed.
const DefaultStaleAfter = 15 * time.Minute

// MsgAbandoned is the error recorded on attempts closed by the sweeper.
const MsgAbandoned = "Processing abandoned"

// Sweeper periodically deletes attempts that are older than each user's
// retention window. Processing attempts are never purged; once they are
// older than the stale threshold the sweeper marks them failed, after which
// retention applies to them as usual.
type Sweeper struct {
	store      Store
	policy     RetentionPolicy
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	onPurge    func(ctx context.Context, userID string, n int)
}

// SweeperOption configures a [Sweeper].
type SweeperOption func(*Sweeper)

// WithSweepClock overrides the sweeper's clock.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithPurgeHook registers fn to be called after each user's expired attempts
// are removed. It is not called for users with nothing to purge.
func WithPurgeHook(fn func(ctx context.Context, userID string, n int)) SweeperOption {
	return func(s *Sweeper) {
		s.onPurge = fn
	}
}

// WithStaleAfter sets how old a processing attempt must be before it is
// closed as failed. Default [DefaultStaleAfter].
func WithStaleAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// NewSweeper returns a Sweeper that runs every interval (default 1h).
func NewSweeper(store Store, policy RetentionPolicy, interval time.Duration, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	s := &Sweeper{store: store, policy: policy, interval: interval, staleAfter: DefaultStaleAfter, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("history: retention sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single pass over all users and returns the number of
// attempts removed. A failure for one user is logged and does not stop the
// pass; only failing to list users is returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	users, err := s.store.Users(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		s.closeStale(ctx, u)
		days, err := s.policy.RetentionDays(ctx, u)
		if err != nil {
			slog.Warn("history: retention lookup failed", "user_id", u, "err", err)
			continue
		}
		if days <= 0 {
			continue
		}
		cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
		n, err := s.store.PurgeOlderThan(ctx, u, cutoff)
		if err != nil {
			slog.Warn("history: purge failed", "user_id", u, "err", err)
			continue
		}
		if n > 0 {
			slog.Info("history: purged expired attempts", "user_id", u, "count", n, "retention_days", days)
			if s.onPurge != nil {
				s.onPurge(ctx, u, n)
			}
		}
		total += n
	}
	return total, nil
}

// closeStale fails the user's attempts that have been processing for longer
// than staleAfter, such as those left behind by a crash mid-command.
func (s *Sweeper) closeStale(ctx context.Context, userID string) {
	now := s.now()
	cutoff := now.Add(-s.staleAfter)
	closed := 0
	for {
		page, err := s.store.Query(ctx, userID, Filter{To: cutoff, Status: StatusProcessing}, 1, MaxLimit)
		if err != nil {
			slog.Warn("history: stale attempt lookup failed", "user_id", userID, "err", err)
			break
		}
		if len(page.Items) == 0 {
			break
		}
		progress := false
		for _, a := range page.Items {
			err := s.store.UpdateTerminal(ctx, a.ID, Terminal{
				Status:                StatusFailed,
				ErrorMessage:          MsgAbandoned,
				ProcessingTimeSeconds: now.Sub(a.CreatedAt).Seconds(),
			})
			switch {
			case err == nil:
				closed++
				progress = true
			case errors.Is(err, ErrAlreadyTerminal):
				progress = true
			default:
				slog.Warn("history: close stale attempt failed", "user_id", userID, "attempt_id", a.ID, "err", err)
			}
		}
		if !progress {
			break
		}
	}
	if closed > 0 {
		slog.Info("history: closed stale attempts", "user_id", userID, "count", closed)
	}
}
