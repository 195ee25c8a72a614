package audit

import (
	"context"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lottochain/observability/metrics"
)

const defaultWorkers = 4

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Workers int
	// Cache, when set, stores reveals and verdicts. Cycles with a cached
	// passing verdict for the same application and reveal are not
	// re-verified.
	Cache  *Cache
	Logger *slog.Logger
}

// Report is the outcome of one audit run.
type Report struct {
	RunID      string            `json:"runId"`
	StartedAt  time.Time         `json:"startedAt"`
	Duration   time.Duration     `json:"duration"`
	Verdicts   []*Verdict        `json:"verdicts"`
	Errors     map[uint64]string `json:"errors,omitempty"`
	Malformed  []string          `json:"malformed,omitempty"`
	SingleDraw DrawReport        `json:"singleDraw"`
}

// Pass reports whether every verdict passed, no cycle failed to load and each
// cycle was drawn once.
func (r *Report) Pass() bool {
	if r == nil || len(r.Errors) > 0 || len(r.Malformed) > 0 || !r.SingleDraw.Pass {
		return false
	}
	for _, v := range r.Verdicts {
		if !v.Pass {
			return false
		}
	}
	return true
}

// Runner verifies many cycles concurrently.
type Runner struct {
	verifier *Verifier
	cache    *Cache
	workers  int
	logger   *slog.Logger
}

// NewRunner wraps v with a bounded worker pool.
func NewRunner(v *Verifier, opts RunnerOptions) *Runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{verifier: v, cache: opts.Cache, workers: workers, logger: logger}
}

// Run verifies cycles, or every revealed cycle when cycles is empty. A cycle
// whose records cannot be fetched is recorded in Report.Errors and does not
// stop the others.
func (r *Runner) Run(ctx context.Context, cycles []uint64) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := r.logger.With("run_id", report.RunID)

	reveals, malformed, err := r.verifier.Reveals(ctx)
	if err != nil {
		return nil, err
	}
	report.Malformed = malformed
	report.SingleDraw = CheckSingleDraw(reveals)
	for _, reveal := range reveals {
		if r.cache == nil {
			break
		}
		if err := r.cache.PutReveal(r.verifier.AppID(), reveal); err != nil {
			logger.Warn("cache reveal", "cycle", reveal.Cycle, "error", err)
		}
	}
	if len(cycles) == 0 {
		cycles = revealedCycles(reveals)
	}
	logger.Info("audit started", "cycles", len(cycles), "reveals", len(reveals), "workers", r.workers)

	verdicts := make([]*Verdict, len(cycles))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, cycle := range cycles {
		g.Go(func() error {
			if cached := r.cached(cycle, reveals); cached != nil {
				verdicts[i] = cached
				return nil
			}
			verdict, err := r.verifier.Verify(gctx, reveals, cycle)
			if err != nil {
				metrics.Lottery().ObserveAuditError()
				logger.Warn("cycle audit failed", "cycle", cycle, "error", err)
				mu.Lock()
				if report.Errors == nil {
					report.Errors = make(map[uint64]string)
				}
				report.Errors[cycle] = err.Error()
				mu.Unlock()
				return nil
			}
			metrics.Lottery().ObserveAuditVerdict(verdict.Pass)
			if !verdict.Pass {
				logger.Warn("cycle mismatch", "cycle", cycle, "reason", verdict.Reason)
			}
			if r.cache != nil {
				if err := r.cache.PutVerdict(r.verifier.AppID(), verdict); err != nil {
					logger.Warn("cache verdict", "cycle", cycle, "error", err)
				}
			}
			verdicts[i] = verdict
			return nil
		})
	}
	_ = g.Wait()

	for _, v := range verdicts {
		if v != nil {
			report.Verdicts = append(report.Verdicts, v)
		}
	}
	report.Duration = time.Since(report.StartedAt)
	logger.Info("audit finished", "pass", report.Pass(), "verdicts", len(report.Verdicts), "errors", len(report.Errors))
	return report, ctx.Err()
}

// cached returns a stored passing verdict for cycle when it was computed from
// the same single reveal (transaction and seed) found in this run.
func (r *Runner) cached(cycle uint64, reveals []Reveal) *Verdict {
	if r.cache == nil {
		return nil
	}
	v, ok, err := r.cache.Verdict(r.verifier.AppID(), cycle)
	if err != nil || !ok || !v.Pass {
		return nil
	}
	var current *Reveal
	for i := range reveals {
		if reveals[i].Cycle != cycle {
			continue
		}
		if current != nil {
			return nil
		}
		current = &reveals[i]
	}
	if current == nil || current.TxID != v.RevealTx || hex.EncodeToString(current.Seed[:]) != v.Seed {
		return nil
	}
	return v
}

func revealedCycles(reveals []Reveal) []uint64 {
	seen := make(map[uint64]struct{}, len(reveals))
	out := make([]uint64, 0, len(reveals))
	for _, r := range reveals {
		if _, ok := seen[r.Cycle]; ok {
			continue
		}
		seen[r.Cycle] = struct{}{}
		out = append(out, r.Cycle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
