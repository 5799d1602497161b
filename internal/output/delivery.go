package output

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/logger"
)

// Dispatcher delivers execution output to every destination configured on a
// Job, collecting per-destination results so one failing destination never
// silently masks another's success.
type Dispatcher struct {
	filesystem *FilesystemDelivery
	webhook    *WebhookDelivery
}

func NewDispatcher(cfg config.OutputConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		filesystem: NewFilesystemDelivery(cfg),
		webhook:    NewWebhookDelivery(cfg, log),
	}
}

// Result records the outcome of delivering to one destination.
type Result struct {
	Kind string
	Err  error
}

// DeliverAll attempts every destination of the same execution concurrently,
// since spec ordering guarantees nothing across independent destinations.
// One destination's failure never stops the others: each result is
// collected independently and the group's own error (always nil here,
// since deliverOne never returns past its Result) is ignored.
func (d *Dispatcher) DeliverAll(ctx context.Context, destinations []domain.OutputDestinationConfig, output json.RawMessage, variables map[string]string) []Result {
	results := make([]Result, len(destinations))
	g, gctx := errgroup.WithContext(ctx)
	for i, dest := range destinations {
		i, dest := i, dest
		g.Go(func() error {
			results[i] = Result{Kind: dest.Kind(), Err: d.deliverOne(gctx, dest, output, variables)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Errors aggregates every failing Result into a single multierr value, nil
// if every destination succeeded.
func Errors(results []Result) error {
	var err error
	for _, r := range results {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", r.Kind, r.Err))
		}
	}
	return err
}

func (d *Dispatcher) deliverOne(ctx context.Context, dest domain.OutputDestinationConfig, output json.RawMessage, variables map[string]string) error {
	switch {
	case dest.Filesystem != nil:
		return d.filesystem.Deliver(ctx, *dest.Filesystem, output, variables)
	case dest.Webhook != nil:
		return d.webhook.Deliver(ctx, *dest.Webhook, output, variables)
	default:
		return fmt.Errorf("output destination has neither filesystem nor webhook configured")
	}
}
