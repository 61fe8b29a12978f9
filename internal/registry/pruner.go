package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/acme/hotline/pkg/logger"
)

// Pruner periodically drops ended calls older than the retention window.
type Pruner struct {
	registry  *Registry
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

// NewPruner constructs a pruner. A non-positive interval defaults to a minute.
func NewPruner(reg *Registry, retention, interval time.Duration, l *logger.Logger) *Pruner {
	if interval <= 0 {
		interval = time.Minute
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Pruner{
		registry:  reg,
		retention: retention,
		interval:  interval,
		logger:    l,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run prunes on every tick until the context is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Pruner) tick(ctx context.Context) int {
	n := p.registry.Prune(ctx, p.now().Add(-p.retention))
	if n > 0 {
		p.logger.Debug("registry: pruned ended calls", zap.Int("count", n))
	}
	return n
}
