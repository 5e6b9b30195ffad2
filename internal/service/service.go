package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"plus-ev-alerts/internal/alerting"
	"plus-ev-alerts/internal/engine"
	"plus-ev-alerts/internal/fetcher"
	"plus-ev-alerts/internal/logging"
	"plus-ev-alerts/internal/metrics"
	"plus-ev-alerts/internal/odds"
	"plus-ev-alerts/internal/scheduler"
	"plus-ev-alerts/internal/storage"
)

// QuoteReader lists the current sportsbook feed.
type QuoteReader interface {
	ListQuotes(ctx context.Context) ([]odds.Quote, error)
}

// ConsensusReader lists the current consensus feed.
type ConsensusReader interface {
	ListConsensus(ctx context.Context) ([]odds.ConsensusQuote, error)
}

// Archive loads and appends recommended opportunities.
type Archive interface {
	LoadArchive(ctx context.Context) ([]odds.Opportunity, error)
	SaveArchive(ctx context.Context, rows []odds.Opportunity, at time.Time) (int, error)
}

// Refresher pulls a fresh sportsbook feed into the quote store.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Deps are the collaborators of one pipeline run. Refresher, Outputs,
// Notifier, Locker and Metrics are optional.
type Deps struct {
	Refresher Refresher
	Quotes    QuoteReader
	Consensus ConsensusReader
	Teams     fetcher.TeamSource
	Archive   Archive
	Outputs   storage.OutputStore
	Notifier  *alerting.Dispatcher
	Locker    storage.AdvisoryLocker
	Metrics   *metrics.Metrics
}

// Options tune the service. Engine.Teams is replaced on every run.
type Options struct {
	Engine        engine.Options
	LockKey       int64
	StopWhenEmpty bool
	DryRun        bool
}

// Report summarises one run.
type Report struct {
	RunID     string
	Result    *engine.Result
	Archived  int
	Delivered int
}

// Service orchestrates loading, evaluation, persistence and alerting.
type Service struct {
	deps      Deps
	opts      Options
	scheduler *scheduler.Scheduler
	now       func() time.Time
	logger    zerolog.Logger
}

// New validates deps and constructs the service. sched may be nil for one-shot use.
func New(deps Deps, opts Options, sched *scheduler.Scheduler, logger zerolog.Logger) (*Service, error) {
	switch {
	case deps.Quotes == nil:
		return nil, errors.New("service: quote reader required")
	case deps.Consensus == nil:
		return nil, errors.New("service: consensus reader required")
	case deps.Teams == nil:
		return nil, errors.New("service: team source required")
	case deps.Archive == nil:
		return nil, errors.New("service: archive required")
	case opts.Engine.Predictor == nil:
		return nil, engine.ErrNoPredictor
	}
	return &Service{
		deps:      deps,
		opts:      opts,
		scheduler: sched,
		now:       time.Now,
		logger:    logger.With().Str("component", "service").Logger(),
	}, nil
}

// Run begins the scheduled evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs the pipeline once under the advisory lock. It returns
// scheduler.ErrStop when the feed is empty and StopWhenEmpty is set.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.deps.Metrics.ObserveRun(metrics.StatusError, 0)
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		s.deps.Metrics.ObserveRun(metrics.StatusSkipped, 0)
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	report, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}
	if s.opts.StopWhenEmpty && report.Result.Diagnostics.QuotesIn == 0 {
		s.logger.Info().Time("bucket", bucket).Msg("quote feed empty, no games left")
		return scheduler.ErrStop
	}
	return nil
}

// RunOnce executes one full pipeline run without taking the lock.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	started := s.now()
	runID := uuid.NewString()
	logger := logging.ForRun(s.logger, runID)

	report, err := s.execute(ctx, runID, started, logger)
	elapsed := s.now().Sub(started)
	if err != nil {
		s.deps.Metrics.ObserveRun(metrics.StatusError, elapsed)
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("run failed")
		return nil, err
	}
	s.deps.Metrics.ObserveRun(metrics.StatusOK, elapsed)

	res := report.Result
	logger.Info().
		Int("merged", len(res.Merged)).
		Int("plus_ev", len(res.PlusEV)).
		Int("new", len(res.New)).
		Int("archived", report.Archived).
		Int("delivered", report.Delivered).
		Object("diagnostics", res.Diagnostics).
		Dur("elapsed", elapsed).
		Bool("dry_run", s.opts.DryRun).
		Msg("run complete")
	return report, nil
}

type inputs struct {
	teams     []odds.TeamName
	quotes    []odds.Quote
	consensus []odds.ConsensusQuote
	archive   []odds.Opportunity
}

func (s *Service) load(ctx context.Context) (inputs, error) {
	var in inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if in.teams, err = s.deps.Teams.FetchTeams(gctx); err != nil {
			return fmt.Errorf("load team names: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if in.quotes, err = s.deps.Quotes.ListQuotes(gctx); err != nil {
			return fmt.Errorf("load quotes: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if in.consensus, err = s.deps.Consensus.ListConsensus(gctx); err != nil {
			return fmt.Errorf("load consensus: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if in.archive, err = s.deps.Archive.LoadArchive(gctx); err != nil {
			return fmt.Errorf("load archive: %w", err)
		}
		return nil
	})
	return in, g.Wait()
}

func (s *Service) execute(ctx context.Context, runID string, now time.Time, logger zerolog.Logger) (*Report, error) {
	if s.deps.Refresher != nil && !s.opts.DryRun {
		n, err := s.deps.Refresher.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh quotes: %w", err)
		}
		logger.Debug().Int("quotes", n).Msg("quote feed refreshed")
	}

	in, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	opts := s.opts.Engine
	opts.Teams = in.teams
	eng, err := engine.New(opts, logger)
	if err != nil {
		return nil, err
	}

	res, err := eng.Run(engine.Snapshot{
		Quotes:    in.quotes,
		Consensus: in.consensus,
		Archive:   in.archive,
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	s.deps.Metrics.ObserveResult(res)

	report := &Report{RunID: runID, Result: res}
	if s.opts.DryRun {
		return report, nil
	}

	if s.deps.Outputs != nil {
		if err := s.deps.Outputs.ReplaceOutputs(ctx, res.Lines, res.PlusEV); err != nil {
			return nil, fmt.Errorf("write outputs: %w", err)
		}
	}

	// Rows are archived before they are announced.
	if len(res.New) > 0 {
		report.Archived, err = s.deps.Archive.SaveArchive(ctx, res.New, now.UTC())
		if err != nil {
			return nil, fmt.Errorf("save archive: %w", err)
		}
		if report.Archived < len(res.New) {
			logger.Warn().Int("new", len(res.New)).Int("archived", report.Archived).Msg("some recommendations were archived concurrently")
		}
	}

	report.Delivered = s.deps.Notifier.Dispatch(ctx, res.New)
	return report, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// StoreTeams adapts a TeamStore to a TeamSource.
type StoreTeams struct {
	Store storage.TeamStore
}

// FetchTeams implements fetcher.TeamSource.
func (t StoreTeams) FetchTeams(ctx context.Context) ([]odds.TeamName, error) {
	return t.Store.ListTeamNames(ctx)
}

var _ fetcher.TeamSource = StoreTeams{}
