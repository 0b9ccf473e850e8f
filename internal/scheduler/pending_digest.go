package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"procuretrack/internal/model"
	"procuretrack/internal/service"
	"procuretrack/internal/workflow"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PendingStates are the holding states that need manual rework to leave.
var PendingStates = []string{"PENDING_PPMP", "PENDING_BUDGET"}

// StaleCounter counts documents per stage whose last change is older than a cutoff.
type StaleCounter interface {
	CountStaleInStages(ctx context.Context, stages []model.Stage, updatedBefore time.Time) ([]model.StateCount, error)
}

// Digest summarizes one run of the pending digest job.
type Digest struct {
	StaleAfter  string             `json:"stale_after"`
	Cutoff      time.Time          `json:"cutoff"`
	Total       int64              `json:"total"`
	ByStage     []model.StateCount `json:"by_stage"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// PendingDigest reports documents stuck in pending states. It only reads and
// publishes; documents are never moved by the job.
type PendingDigest struct {
	cron       *cron.Cron
	spec       string
	stages     []model.Stage
	staleAfter time.Duration
	counter    StaleCounter
	notifier   service.Notifier
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	running bool
}

func NewPendingDigest(def *workflow.Definition, spec string, staleAfter time.Duration, counter StaleCounter, notifier service.Notifier, logger *zap.Logger) *PendingDigest {
	if logger == nil {
		logger = zap.NewNop()
	}
	// terminal hand-off states (a supply request forwarded to PPMP) are never reworked
	var stages []model.Stage
	for _, st := range def.StagesIn(PendingStates...) {
		if !def.IsTerminal(st.DocumentType, st.State) {
			stages = append(stages, st)
		}
	}
	return &PendingDigest{
		cron:       cron.New(cron.WithSeconds()),
		spec:       spec,
		stages:     stages,
		staleAfter: staleAfter,
		counter:    counter,
		notifier:   notifier,
		logger:     logger.Named("pending_digest"),
		now:        time.Now,
	}
}

// Start registers the job and starts the cron scheduler.
func (p *PendingDigest) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pending digest already running")
	}

	_, err := p.cron.AddFunc(p.spec, func() {
		if _, err := p.Run(ctx); err != nil {
			p.logger.Error("pending digest failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid PENDING_DIGEST_CRON %q: %w", p.spec, err)
	}

	p.cron.Start()
	p.running = true
	p.logger.Info("pending digest scheduled", zap.String("cron", p.spec), zap.Duration("stale_after", p.staleAfter))
	return nil
}

// Stop waits for a running job to finish.
func (p *PendingDigest) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
}

// Run computes and publishes one digest.
func (p *PendingDigest) Run(ctx context.Context) (*Digest, error) {
	now := p.now()
	cutoff := now.Add(-p.staleAfter)

	counts, err := p.counter.CountStaleInStages(ctx, p.stages, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending documents: %w", err)
	}

	digest := &Digest{
		StaleAfter:  p.staleAfter.String(),
		Cutoff:      cutoff,
		ByStage:     counts,
		GeneratedAt: now,
	}
	if digest.ByStage == nil {
		digest.ByStage = []model.StateCount{}
	}
	for _, c := range counts {
		digest.Total += c.Total
		p.logger.Info("stale pending documents",
			zap.String("document_type", c.DocumentType),
			zap.String("state", c.State),
			zap.Int64("total", c.Total),
		)
	}

	if digest.Total > 0 {
		p.notifier.Publish(service.EventPendingDigest, digest)
	}
	return digest, nil
}
