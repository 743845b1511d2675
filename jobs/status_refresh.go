package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/prestana/prestana/internal/jobs"
	"github.com/prestana/prestana/internal/lending"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const statusRefreshConcurrency = 4

// BusinessLister yields the businesses whose loans need a status sweep.
type BusinessLister interface {
	ListBusinessIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StatusRefreshJob rederives loan statuses business by business so that
// past_due flips happen even when nobody touches the loan.
type StatusRefreshJob struct {
	Lending    *lending.Service
	Businesses BusinessLister
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewStatusRefreshJob wires dependencies for the status refresh handler.
func NewStatusRefreshJob(svc *lending.Service, businesses BusinessLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatusRefreshJob {
	return &StatusRefreshJob{
		Lending:    svc,
		Businesses: businesses,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes loan:status_refresh tasks.
func (j *StatusRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Lending == nil || j.Businesses == nil {
		return errors.New("status refresh: handler not configured")
	}
	var payload StatusRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := j.clock()
	if payload.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed
	}

	tracker := j.metrics().Track(TaskLoanStatusRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	started := j.clock()
	businesses, err := j.Businesses.ListBusinessIDs(ctx)
	if err != nil {
		resultErr = err
		return resultErr
	}

	var updated atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(statusRefreshConcurrency)
	for _, businessID := range businesses {
		group.Go(func() error {
			n, err := j.Lending.RefreshStatuses(groupCtx, businessID, asOf)
			if err != nil {
				return err
			}
			updated.Add(int64(n))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		return resultErr
	}

	j.logger().Info("loan status refresh complete",
		slog.Int("businesses", len(businesses)),
		slog.Int64("loans_updated", updated.Load()),
		slog.Duration("took", j.clock().Sub(started)),
	)
	return nil
}

func (j *StatusRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *StatusRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
