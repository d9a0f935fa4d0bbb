package amp

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/metrics"
	"github.com/Adda-Baaj/jist-harvester/internal/retry"
)

// BatchGetter resolves one batch of at most MaxBatchSize URLs.
type BatchGetter interface {
	BatchGet(ctx context.Context, urls []string) (domain.AmpBatchResult, error)
}

// Config tunes a Resolver.
type Config struct {
	Concurrency      int
	QuotaCooldown    time.Duration
	TransportRetries int
	TransportDelay   time.Duration
	// MaxQuotaRetries bounds quota cooldowns per batch. Zero means unbounded.
	MaxQuotaRetries int
	Now             func() time.Time
	Sleep           retry.Sleeper
}

// Resolver resolves AMP URLs for any number of article URLs in batches.
type Resolver struct {
	client BatchGetter
	cfg    Config
	gate   *CooldownGate
	log    logger.Logger
}

// NewResolver builds a Resolver.
func NewResolver(client BatchGetter, cfg Config, log logger.Logger) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	return &Resolver{
		client: client,
		cfg:    cfg,
		gate:   NewCooldownGate(cfg.Now, cfg.Sleep),
		log:    logger.Ensure(log),
	}
}

// Chunk splits urls into consecutive groups of size; the last may be smaller.
func Chunk(urls []string, size int) [][]string {
	if size <= 0 || len(urls) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(urls)+size-1)/size)
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		chunks = append(chunks, urls[start:end:end])
	}
	return chunks
}

// ResolveAll resolves urls in batches of MaxBatchSize. Batches that are
// abandoned contribute nothing; only cancellation is returned as an error.
// outcome may be nil.
func (r *Resolver) ResolveAll(ctx context.Context, outcome *domain.RunOutcome, urls []string) (domain.AmpBatchResult, error) {
	merged := domain.NewAmpBatchResult()
	chunks := Chunk(unique(urls), MaxBatchSize)
	if len(chunks) == 0 {
		return merged, nil
	}

	runs := make([]*batchRun, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, chunk := range chunks {
		run := &batchRun{index: i, urls: chunk}
		runs[i] = run
		g.Go(func() error {
			r.runBatch(gctx, outcome, run)
			return nil
		})
	}
	_ = g.Wait()

	abandoned := 0
	for _, run := range runs {
		if run.state == stateSuccess {
			merged.Merge(run.result)
		} else {
			abandoned++
		}
	}
	if outcome != nil {
		outcome.Update(func(o *domain.RunOutcome) {
			o.AmpResolved += len(merged.Resolved)
			o.AmpFailed += len(merged.Failed)
			o.AmpAbandoned += abandoned
		})
	}

	r.log.InfoObj("amp resolution finished", "amp_summary", map[string]any{
		"urls":      len(urls),
		"batches":   len(chunks),
		"resolved":  len(merged.Resolved),
		"failed":    len(merged.Failed),
		"abandoned": abandoned,
	})

	if err := ctx.Err(); err != nil {
		return merged, err
	}
	return merged, nil
}

type batchState int

const (
	stateDispatch batchState = iota
	stateAwaitResponse
	stateQuotaCooldown
	stateTransportRetry
	stateSuccess
	stateAbandoned
)

func (s batchState) String() string {
	switch s {
	case stateDispatch:
		return "dispatch"
	case stateAwaitResponse:
		return "await_response"
	case stateQuotaCooldown:
		return "quota_cooldown"
	case stateTransportRetry:
		return "transport_retry"
	case stateSuccess:
		return "success"
	case stateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

func (s batchState) terminal() bool {
	return s == stateSuccess || s == stateAbandoned
}

// batchRun is the state of one batch moving through the resolution state machine.
type batchRun struct {
	index            int
	urls             []string
	state            batchState
	attempts         int
	quotaRetries     int
	transportRetries int
	lastErr          error
	result           domain.AmpBatchResult
}

func (r *Resolver) runBatch(ctx context.Context, outcome *domain.RunOutcome, b *batchRun) {
	for !b.state.terminal() {
		r.step(ctx, outcome, b)
	}
	if b.state == stateAbandoned {
		r.log.WarnObj("amp batch abandoned", "amp_batch_abandoned", map[string]any{
			"batch":    b.index,
			"urls":     len(b.urls),
			"attempts": b.attempts,
			"error":    errString(b.lastErr),
		})
	}
}

// step performs exactly one state transition for b.
func (r *Resolver) step(ctx context.Context, outcome *domain.RunOutcome, b *batchRun) {
	switch b.state {
	case stateDispatch:
		if err := r.gate.Wait(ctx); err != nil {
			b.lastErr = err
			b.state = stateAbandoned
			return
		}
		b.state = stateAwaitResponse

	case stateAwaitResponse:
		b.attempts++
		res, err := r.client.BatchGet(ctx, b.urls)
		b.lastErr = err
		switch {
		case err == nil:
			b.result = res
			b.state = stateSuccess
		case ctx.Err() != nil:
			b.state = stateAbandoned
		case errors.Is(err, domain.ErrQuotaExceeded), errors.Is(err, domain.ErrAmpAPI):
			b.state = stateQuotaCooldown
		default:
			b.state = stateTransportRetry
		}

	case stateQuotaCooldown:
		b.quotaRetries++
		if r.cfg.MaxQuotaRetries > 0 && b.quotaRetries > r.cfg.MaxQuotaRetries {
			b.state = stateAbandoned
			return
		}
		r.gate.Trip(r.cfg.QuotaCooldown)
		metrics.AmpQuotaCooldowns.Inc()
		if outcome != nil {
			outcome.Update(func(o *domain.RunOutcome) { o.AmpCooldowns++ })
		}
		r.log.WarnObj("amp quota exceeded, cooling down", "amp_quota_cooldown", map[string]any{
			"batch":       b.index,
			"cooldown_ms": r.cfg.QuotaCooldown.Milliseconds(),
			"retry":       b.quotaRetries,
			"error":       errString(b.lastErr),
		})
		b.state = stateDispatch

	case stateTransportRetry:
		b.transportRetries++
		if b.transportRetries > r.cfg.TransportRetries {
			b.state = stateAbandoned
			return
		}
		r.log.WarnObj("amp batch transport failure, retrying", "amp_transport_retry", map[string]any{
			"batch": b.index,
			"retry": b.transportRetries,
			"error": errString(b.lastErr),
		})
		if err := r.cfg.Sleep(ctx, r.cfg.TransportDelay); err != nil {
			b.lastErr = err
			b.state = stateAbandoned
			return
		}
		b.state = stateDispatch
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// unique drops repeated and blank URLs, keeping first-seen order.
func unique(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
