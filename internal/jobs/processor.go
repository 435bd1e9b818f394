package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type AssetRemover interface {
	Remove(ctx context.Context, publicID string) error
}

type SessionPurger interface {
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
}

// Processor executes tasks read from the stream.
type Processor struct {
	assets    AssetRemover
	sessions  SessionPurger
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewProcessor(assets AssetRemover, sessions SessionPurger, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		assets:    assets,
		sessions:  sessions,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := decodeTask(msg.Values)
	if err != nil {
		return fmt.Errorf("decode task %s: %w", msg.ID, err)
	}

	switch task.Type {
	case TaskAssetDelete:
		return p.deleteAsset(ctx, task)
	case TaskSessionsPurge:
		return p.purgeSessions(ctx)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) deleteAsset(ctx context.Context, task Task) error {
	if task.PublicID == "" {
		return nil
	}
	if p.assets == nil {
		p.logger.Warn().Str("public_id", task.PublicID).Msg("asset delete skipped, storage disabled")
		return nil
	}
	if err := p.assets.Remove(ctx, task.PublicID); err != nil {
		return err
	}
	p.logger.Info().Str("public_id", task.PublicID).Msg("avatar asset removed")
	return nil
}

func (p *Processor) purgeSessions(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	purged, err := p.sessions.PurgeStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	p.logger.Info().Int64("purged", purged).Time("cutoff", cutoff).Msg("stale sessions purged")
	return nil
}
