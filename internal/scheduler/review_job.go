package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/rebalancing"
	"github.com/vmarcondes-nilo/equity-research-agent/internal/modules/research"
)

// reviewTimeout bounds one portfolio's review cycle. Generous because a
// large universe fetch alone can take minutes under throttling.
const reviewTimeout = 30 * time.Minute

// PortfolioLister enumerates the portfolios due for review
type PortfolioLister interface {
	ListIDs() ([]string, error)
}

// ReviewJob runs the periodic review cycle across every portfolio
type ReviewJob struct {
	service *research.Service
	lister  PortfolioLister
	log     zerolog.Logger
}

// NewReviewJob creates the review job
func NewReviewJob(service *research.Service, lister PortfolioLister, log zerolog.Logger) *ReviewJob {
	return &ReviewJob{
		service: service,
		lister:  lister,
		log:     log.With().Str("job", "review").Logger(),
	}
}

// Name returns the job name
func (j *ReviewJob) Name() string {
	return "monthly_review"
}

// Run reviews each portfolio in turn. One portfolio's failure does not stop
// the others.
func (j *ReviewJob) Run() error {
	ids, err := j.lister.ListIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		j.log.Info().Msg("No portfolios to review")
		return nil
	}

	var lastErr error
	for _, id := range ids {
		if err := j.reviewOne(id); err != nil {
			j.log.Error().Err(err).Str("portfolio", id).Msg("Review failed")
			lastErr = err
		}
	}
	return lastErr
}

func (j *ReviewJob) reviewOne(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), reviewTimeout)
	defer cancel()

	res, err := j.service.RunReview(ctx, id)
	if err != nil {
		return err
	}

	evt := j.log.Info().Str("portfolio", id).Str("state", string(res.State)).Int("trades", len(res.Plan))
	if res.State == rebalancing.StateRejected {
		evt = j.log.Warn().Str("portfolio", id).Str("rejection", res.Rejection)
	}
	evt.Msg("Review cycle finished")
	return nil
}
