package invites

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// DefaultPurgeCron runs the purge hourly.
const DefaultPurgeCron = "0 * * * *"

const retryDelay = 30 * time.Second

// Janitor purges expired invites on a cron schedule.
type Janitor struct {
	invites *Service
	expr    string
	log     *zerolog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewJanitor validates expr and returns a janitor for svc.
// An empty expression falls back to DefaultPurgeCron.
func NewJanitor(svc *Service, expr string, logger *zerolog.Logger) (*Janitor, error) {
	if expr == "" {
		expr = DefaultPurgeCron
	}
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid invite purge cron expression: %q", expr)
	}
	return &Janitor{
		invites: svc,
		expr:    expr,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
		after:   time.After,
	}, nil
}

// Run sleeps until each scheduled tick and purges expired invites. It returns when ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.log.Info().Str("cron", j.expr).Msg("invite janitor started")
	defer j.log.Info().Msg("invite janitor stopped")

	for {
		wait := retryDelay
		next, err := gronx.NextTickAfter(j.expr, j.now(), false)
		if err != nil {
			j.log.Error().Err(err).Str("cron", j.expr).Msg("failed to compute next purge")
		} else {
			wait = next.Sub(j.now())
		}

		select {
		case <-ctx.Done():
			return
		case <-j.after(wait):
		}
		if err != nil {
			continue
		}

		n, err := j.invites.PurgeExpired(ctx)
		if err != nil {
			j.log.Error().Err(err).Msg("invite purge failed")
			continue
		}
		if n > 0 {
			j.log.Info().Int64("count", n).Msg("purged expired invites")
		}
	}
}
