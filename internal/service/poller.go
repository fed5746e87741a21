package service

import (
	"context"
	"time"

	"whatsapp-broadcast-platform/config"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"

	"github.com/rs/zerolog"
)

// DispatchPoller repeatedly invokes the batch processor for every running
// campaign until stopped. The processor itself is stateless and durable, so
// the poller carries no state beyond its ticker; a crashed or restarted
// poller resumes exactly where the queue left off.
type DispatchPoller struct {
	campaignRepo ports.CampaignRepository
	dispatcher   ports.DispatchService
	interval     time.Duration
	speed        domain.DispatchSpeed
	log          zerolog.Logger
	done         chan struct{}
}

// NewDispatchPoller creates a new DispatchPoller.
func NewDispatchPoller(
	campaignRepo ports.CampaignRepository,
	dispatcher ports.DispatchService,
	cfg config.DispatchConfig,
	log zerolog.Logger,
) *DispatchPoller {
	speed := domain.DispatchSpeed(cfg.DefaultSpeed)
	if !speed.Valid() {
		speed = domain.SpeedNormal
	}
	return &DispatchPoller{
		campaignRepo: campaignRepo,
		dispatcher:   dispatcher,
		interval:     cfg.PollInterval,
		speed:        speed,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Run polls until ctx is cancelled. Call from its own goroutine.
func (p *DispatchPoller) Run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Str("speed", string(p.speed)).Msg("dispatch poller started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("dispatch poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// Done is closed once Run has returned, for shutdown sequencing.
func (p *DispatchPoller) Done() <-chan struct{} {
	return p.done
}

func (p *DispatchPoller) tick(ctx context.Context) {
	ids, err := p.campaignRepo.ListIDsByStatus(ctx, domain.CampaignStatusRunning)
	if err != nil {
		p.log.Error().Err(err).Msg("poller failed to list running campaigns")
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		result, err := p.dispatcher.ProcessBatch(ctx, id, p.speed)
		if err != nil {
			// Precondition failures are expected while configuration is
			// incomplete; the next tick retries.
			p.log.Warn().Err(err).Str("campaign_id", id.String()).Msg("batch invocation failed")
			continue
		}
		if result.Processed > 0 || result.Finished {
			p.log.Debug().
				Str("campaign_id", id.String()).
				Int("processed", result.Processed).
				Bool("finished", result.Finished).
				Msg("poller batch done")
		}
	}
}
