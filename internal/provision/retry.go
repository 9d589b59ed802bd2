package provision

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"ipv6-provision-backend/internal/metrics"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/state"
	"ipv6-provision-backend/internal/store"
)

// RetrySummary counts the outcome of one retry pass.
type RetrySummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type retryOutcome int

const (
	retrySucceeded retryOutcome = iota
	retryFailed
	retrySkipped
)

func (o retryOutcome) String() string {
	switch o {
	case retrySucceeded:
		return "success"
	case retryFailed:
		return "failed"
	}
	return "skipped"
}

// RetryFailed re-dispatches every failed or retrying binding. Each record is
// claimed with a compare-and-set on its status, so a record moved by a
// callback or another pass is skipped. Outcomes are decided synchronously from
// the provider's response body.
func (s *Service) RetryFailed(ctx context.Context) (RetrySummary, error) {
	bindings, err := s.store.ListBindings(ctx, store.BindingFilter{Statuses: state.RetryCandidates})
	if err != nil {
		return RetrySummary{}, err
	}

	var succeeded, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.retryConcurrency)

	for i := range bindings {
		b := &bindings[i]
		g.Go(func() error {
			outcome := s.retryOne(ctx, b)
			metrics.RetryTotal.WithLabelValues(outcome.String()).Inc()
			switch outcome {
			case retrySucceeded:
				succeeded.Add(1)
			case retryFailed:
				failed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := RetrySummary{
		Total:     len(bindings),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	s.log.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Retry pass finished")
	return summary, nil
}

func (s *Service) retryOne(ctx context.Context, b *model.AddressBinding) retryOutcome {
	log := s.log.With().Int64("binding_id", b.ID).Logger()

	if err := s.claim(ctx, s.store, b, state.BindingRetryClaimed); err != nil {
		if errors.Is(err, ErrConflict) {
			log.Info().Err(err).Msg("Binding changed since listing, skipping retry")
		} else {
			log.Error().Err(err).Msg("Failed to claim binding for retry")
		}
		return retrySkipped
	}

	res := s.client.Dispatch(ctx, provider.BindingRequest{
		RecordID:    b.ID,
		IPv6Address: b.IPv6Address,
		MACAddress:  b.MACAddress,
	})

	outcome := retrySucceeded
	ev := state.BindingRetryAccepted
	if !res.BusinessSuccess() {
		outcome = retryFailed
		ev = state.BindingRetryFailed
	}
	settled, err := s.settle(ctx, s.store, b, ev, res)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save retry outcome")
		return retryFailed
	}

	log.Info().Str("status", string(settled.SendStatus)).Int("retry_count", settled.RetryCount).Msg("Binding retried")
	return outcome
}

// ClearFailed resets retry bookkeeping on failed bindings.
func (s *Service) ClearFailed(ctx context.Context) (int64, error) {
	n, err := s.store.ClearFailedRetries(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("cleared", n).Msg("Cleared retry state of failed bindings")
	return n, nil
}
