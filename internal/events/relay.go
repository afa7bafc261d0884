package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

// Relay moves outbox rows to a Publisher.
type Relay struct {
	store     Store
	publisher Publisher
	batch     int
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewRelay(store Store, publisher Publisher, batch int, m *metrics.Metrics, log zerolog.Logger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		batch:     batch,
		metrics:   m,
		log:       log.With().Str("component", "outbox-relay").Str("sink", publisher.Name()).Logger(),
	}
}

// RunOnce relays at most one batch. A publish failure stops the batch; events
// already delivered are marked and the rest are retried on the next run.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var attempted int

	n, err := r.store.Drain(ctx, r.batch, func(ctx context.Context, batch []Event) (int, error) {
		attempted = len(batch)
		return r.publisher.Publish(ctx, batch)
	})

	r.metrics.Relayed(r.publisher.Name(), "ok", n)
	if err != nil {
		r.metrics.Relayed(r.publisher.Name(), "error", attempted-n)
		r.log.Error().Err(err).Int("delivered", n).Int("attempted", attempted).Msg("relay run failed")
		return n, err
	}

	if n > 0 {
		r.log.Info().Int("delivered", n).Msg("relayed events")
	}
	return n, nil
}
