package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/calyxbio/warrant/internal/domain"
	"go.uber.org/zap"
)

var ErrRunnerBusy = errors.New("run queue is full")

const (
	defaultRunQueueSize = 16
	persistTimeout      = 10 * time.Second
)

// RunnerService executes queued runs one at a time in a background
// goroutine. Runs never share belief state; each gets its own Loop.
type RunnerService struct {
	runStore    domain.RunStore
	evidence    domain.EvidenceStore
	refusals    domain.RefusalStore
	decisions   domain.DecisionStore
	diagnostics domain.DiagnosticStore
	world       domain.WorldClient
	calibration domain.CalibrationSource
	logger      *zap.Logger

	queue  chan *domain.Run
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRunnerService(
	runStore domain.RunStore,
	evidence domain.EvidenceStore,
	refusals domain.RefusalStore,
	decisions domain.DecisionStore,
	diagnostics domain.DiagnosticStore,
	world domain.WorldClient,
	calibration domain.CalibrationSource,
	logger *zap.Logger,
) *RunnerService {
	return &RunnerService{
		runStore:    runStore,
		evidence:    evidence,
		refusals:    refusals,
		decisions:   decisions,
		diagnostics: diagnostics,
		world:       world,
		calibration: calibration,
		logger:      logger,
		queue:       make(chan *domain.Run, defaultRunQueueSize),
		stopCh:      make(chan struct{}),
	}
}

// Enqueue schedules a pending run for execution.
func (s *RunnerService) Enqueue(r *domain.Run) error {
	select {
	case s.queue <- r:
		return nil
	default:
		return ErrRunnerBusy
	}
}

// Start consumes the run queue in a background goroutine.
func (s *RunnerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("runner started")
		for {
			select {
			case r := <-s.queue:
				s.executeRun(r)
			case <-s.stopCh:
				s.logger.Info("runner stopped")
				return
			}
		}
	}()
}

// Stop waits for the in-flight run to finish its current cycle and flush.
func (s *RunnerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// ExecuteRun runs a single run synchronously. Exposed for drivers that want
// to own scheduling; the background queue uses it too.
func (s *RunnerService) ExecuteRun(ctx context.Context, r *domain.Run) {
	if err := s.runStore.MarkStarted(ctx, r.ID); err != nil {
		s.logger.Error("failed to mark run started", zap.String("run_id", r.ID.String()), zap.Error(err))
		return
	}

	profile, err := s.calibration.Profile(ctx)
	if err != nil {
		s.failRun(ctx, r, "calibration profile unavailable: "+err.Error())
		return
	}
	filter := NewSNRFilter(profile, r.Spec.SNR, s.logger)
	loop := NewLoop(r.ID, r.Spec, s.world, filter, s.evidence, s.refusals, s.decisions, s.diagnostics, s.logger)

	summary, runErr := loop.Run(ctx)
	switch {
	case runErr == nil:
		s.finishRun(ctx, r, domain.RunCompleted, summary, "")
	case errors.Is(runErr, context.Canceled):
		s.finishRun(ctx, r, domain.RunCancelled, summary, runErr.Error())
	default:
		// Fatal integrity and provenance errors land here with full context.
		s.logger.Error("run failed", zap.String("run_id", r.ID.String()), zap.Error(runErr))
		s.finishRun(ctx, r, domain.RunFailed, summary, runErr.Error())
	}
}

func (s *RunnerService) executeRun(r *domain.Run) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the run when the runner is stopped; the loop flushes the open
	// cycle before returning.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-done:
		}
	}()

	s.ExecuteRun(ctx, r)
}

func (s *RunnerService) failRun(ctx context.Context, r *domain.Run, reason string) {
	s.logger.Error("run aborted before loop start", zap.String("run_id", r.ID.String()), zap.String("reason", reason))
	s.finishRun(ctx, r, domain.RunFailed, nil, reason)
}

func (s *RunnerService) finishRun(ctx context.Context, r *domain.Run, status domain.RunStatus, summary *domain.RunSummary, reason string) {
	// Persist the terminal state even if the run context was cancelled.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
	}
	if err := s.runStore.MarkFinished(ctx, r.ID, status, summary, reason); err != nil {
		s.logger.Error("failed to persist run outcome",
			zap.String("run_id", r.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
