package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/repo"
)

// Janitor periodically purges expired refresh sessions and message
// idempotency records. Expired rows are already ignored on read; purging
// only bounds table growth.
type Janitor struct {
	DB       *gorm.DB
	Interval time.Duration
	Logger   *zerolog.Logger

	now func() time.Time
}

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	Sessions    int64
	Idempotency int64
}

func (j *Janitor) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now().UTC()
}

// Sweep deletes everything that expired at or before now.
func (j *Janitor) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := otel.Tracer("services/Janitor").Start(ctx, "Sweep")
	defer span.End()

	now := j.clock()
	var res SweepResult
	n, err := repo.DeleteExpiredSessions(ctx, j.DB, now)
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	res.Sessions = n

	n, err = repo.DeleteExpiredIdempotency(ctx, j.DB, now)
	if err != nil {
		return res, fmt.Errorf("purge idempotency: %w", err)
	}
	res.Idempotency = n
	return res, nil
}

// Run sweeps every Interval until ctx is cancelled. Failures are logged and
// retried on the next tick.
func (j *Janitor) Run(ctx context.Context) {
	lg := j.Logger
	if lg == nil {
		lg = &log.Logger
	}
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := j.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					lg.Error().Err(err).Msg("janitor sweep failed")
				}
				continue
			}
			if res.Sessions > 0 || res.Idempotency > 0 {
				lg.Info().
					Int64("sessions", res.Sessions).
					Int64("idempotency", res.Idempotency).
					Msg("janitor purged expired rows")
			}
		}
	}
}
