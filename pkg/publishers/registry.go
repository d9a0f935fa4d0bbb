package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
)

// Builder creates a Publisher from a sink entry.
type Builder func(ctx context.Context, cfg SinkConfig, log Logger) (Publisher, error)

// Registry maps sink types to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry with the given builders.
func NewRegistry(builders map[string]Builder) *Registry {
	r := &Registry{builders: make(map[string]Builder, len(builders))}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// DefaultRegistry knows the http and queue sink types.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Builder{
		TypeHTTP:  newHTTPPublisher,
		TypeQueue: newQueuePublisher,
	})
}

// Register associates a builder with a sink type. Empty types and nil builders are ignored.
func (r *Registry) Register(typ string, builder Builder) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || builder == nil {
		return
	}
	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// Build instantiates a Publisher for every sink.
func (r *Registry) Build(ctx context.Context, cfgs []SinkConfig, log Logger) ([]Publisher, error) {
	log = ensureLogger(log)
	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		r.mu.RLock()
		builder := r.builders[cfg.Type]
		r.mu.RUnlock()
		if builder == nil {
			closeAll(pubs)
			return nil, fmt.Errorf("no publisher registered for type %q", cfg.Type)
		}

		pub, err := builder(ctx, cfg, log)
		if err != nil {
			closeAll(pubs)
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// Fanout delivers persisted-article events to every publisher. Delivery is
// best effort: failures are logged and never reach the caller.
type Fanout struct {
	pubs    []Publisher
	timeout time.Duration
	now     func() time.Time
	log     Logger
}

// NewFanout wraps pubs. timeout bounds each delivery; zero means no extra bound.
func NewFanout(pubs []Publisher, timeout time.Duration, log Logger) *Fanout {
	return &Fanout{pubs: pubs, timeout: timeout, now: time.Now, log: ensureLogger(log)}
}

// Len reports the number of publishers.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.pubs)
}

// Notify publishes an article.persisted event for art.
func (f *Fanout) Notify(ctx context.Context, art domain.Article) {
	if f.Len() == 0 {
		return
	}
	f.Publish(ctx, NewPersistedEvent(art, f.now()))
}

// Publish sends evt to all publishers concurrently and waits for them.
func (f *Fanout) Publish(ctx context.Context, evt Event) {
	var wg sync.WaitGroup
	for _, pub := range f.pubs {
		wg.Add(1)
		go func(pub Publisher) {
			defer wg.Done()

			pctx := ctx
			if f.timeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}
			if err := pub.Publish(pctx, evt); err != nil {
				f.log.WarnObj("publisher delivery failed", "publisher_error", map[string]any{
					"publisher_id": pub.ID(),
					"type":         pub.Type(),
					"url_hash":     evt.URLHash,
					"error":        err.Error(),
				})
				return
			}
			f.log.DebugObj("publisher delivered event", "publisher_delivery", map[string]any{
				"publisher_id": pub.ID(),
				"url_hash":     evt.URLHash,
			})
		}(pub)
	}
	wg.Wait()
}

// Close releases publisher resources.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	return closeAll(f.pubs)
}

func closeAll(pubs []Publisher) error {
	var errs []error
	for _, pub := range pubs {
		if c, ok := pub.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher %q: %w", pub.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
