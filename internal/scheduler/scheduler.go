// Package scheduler triggers fetch runs on a fixed cadence. The recurring job
// is registered once in Redis under a fixed key, so restarts and extra
// processes never create a second schedule.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"newsdesk/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 24 * time.Hour

	JobKey  = "newsdesk:cron:fetch"
	lastKey = JobKey + ":last"

	fieldRegisteredAt = "registered_at"
	fieldNextRun      = "next_run"
	fieldInterval     = "interval"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Runner performs one fetch. Scheduled and manual runs use the same Runner.
type Runner interface {
	FetchAndStore(ctx context.Context) model.FetchResult
}

// Registration is the durable record of the recurring job.
type Registration struct {
	RegisteredAt time.Time     `json:"registered_at"`
	NextRun      time.Time     `json:"next_run"`
	Interval     time.Duration `json:"interval"`
}

// LastRun is the outcome of the most recent run, whatever triggered it.
type LastRun struct {
	Trigger Trigger           `json:"trigger"`
	Result  model.FetchResult `json:"result"`
}

type Scheduler struct {
	rdb        *redis.Client
	runner     Runner
	logger     *zap.Logger
	interval   time.Duration
	checkEvery time.Duration
	owner      string
	now        func() time.Time
}

// New builds a Scheduler. A non-positive interval means DefaultInterval.
func New(rdb *redis.Client, runner Runner, logger *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		rdb:        rdb,
		runner:     runner,
		logger:     logger,
		interval:   interval,
		checkEvery: min(interval, time.Minute),
		owner:      uuid.NewString(),
		now:        time.Now,
	}
}

// EnsureRegistered registers the recurring job if none exists. It reports
// whether this call created the registration. The first run is due at once.
func (s *Scheduler) EnsureRegistered(ctx context.Context) (bool, error) {
	now := s.now().UnixMilli()

	var created *redis.BoolCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.HSetNX(ctx, JobKey, fieldRegisteredAt, now)
		pipe.HSetNX(ctx, JobKey, fieldNextRun, now)
		pipe.HSet(ctx, JobKey, fieldInterval, s.interval.String())
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("register fetch job: %w", err)
	}
	return created.Val(), nil
}

// Registration returns the stored job record, or nil if none is registered.
func (s *Scheduler) Registration(ctx context.Context) (*Registration, error) {
	vals, err := s.rdb.HGetAll(ctx, JobKey).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	reg := &Registration{}
	if ms, err := strconv.ParseInt(vals[fieldRegisteredAt], 10, 64); err == nil {
		reg.RegisteredAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(vals[fieldNextRun], 10, 64); err == nil {
		reg.NextRun = time.UnixMilli(ms).UTC()
	}
	if d, err := time.ParseDuration(vals[fieldInterval]); err == nil {
		reg.Interval = d
	}
	return reg, nil
}

// Start registers the job if needed and runs due slots until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	created, err := s.EnsureRegistered(ctx)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("Registered recurring fetch", zap.Duration("interval", s.interval))
	} else {
		s.logger.Info("Recurring fetch already registered", zap.Duration("interval", s.interval))
	}

	ticker := time.NewTicker(s.checkEvery)
	defer ticker.Stop()

	for {
		if _, err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Scheduler tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs the fetch if the registered slot is due and this process wins the
// claim for it. Every outcome completes the slot; failures wait for the next one.
func (s *Scheduler) tick(ctx context.Context) (bool, error) {
	next, err := s.rdb.HGet(ctx, JobKey, fieldNextRun).Int64()
	if errors.Is(err, redis.Nil) {
		// Registration vanished (flushed Redis); restore it and run next tick.
		_, err = s.EnsureRegistered(ctx)
		return false, err
	}
	if err != nil {
		return false, err
	}

	now := s.now()
	if now.UnixMilli() < next {
		return false, nil
	}

	claimed, err := s.rdb.SetNX(ctx, claimKey(next), s.owner, s.interval).Result()
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	if err := s.rdb.HSet(ctx, JobKey, fieldNextRun, now.Add(s.interval).UnixMilli()).Err(); err != nil {
		return false, err
	}

	s.execute(ctx, TriggerScheduled)
	return true, nil
}

// RunNow performs a manual run through the same Runner the timer uses.
func (s *Scheduler) RunNow(ctx context.Context) model.FetchResult {
	return s.execute(ctx, TriggerManual)
}

func (s *Scheduler) execute(ctx context.Context, trigger Trigger) model.FetchResult {
	result := s.runner.FetchAndStore(ctx)
	if err := s.record(ctx, LastRun{Trigger: trigger, Result: result}); err != nil {
		s.logger.Warn("Failed to record run", zap.Error(err))
	}
	return result
}

func (s *Scheduler) record(ctx context.Context, run LastRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, lastKey, data, 0).Err()
}

// LastRun returns the most recent recorded run, or nil if none has happened.
func (s *Scheduler) LastRun(ctx context.Context) (*LastRun, error) {
	data, err := s.rdb.Get(ctx, lastKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var run LastRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func claimKey(slot int64) string {
	return JobKey + ":claim:" + strconv.FormatInt(slot, 10)
}
