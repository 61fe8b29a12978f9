package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/hotline/internal/config"
	"github.com/acme/hotline/internal/domain"
	"github.com/acme/hotline/internal/telephony"
	apperrors "github.com/acme/hotline/pkg/errors"
	"github.com/acme/hotline/pkg/logger"
)

// Provider simulates the calling SDK: a dialled call progresses after
// ProgressDelay and is answered after EstablishDelay.
type Provider struct {
	sink           telephony.Sink
	progressDelay  time.Duration
	establishDelay time.Duration
	timeout        time.Duration
	logger         *logger.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup

	root   context.Context
	cancel context.CancelFunc
}

// NewProvider constructs a simulated SDK reporting into sink.
func NewProvider(cfg config.SDKConfig, sink telephony.Sink, l *logger.Logger) *Provider {
	if l == nil {
		l = logger.Nop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	root, cancel := context.WithCancel(context.Background())
	return &Provider{
		sink:           sink,
		progressDelay:  cfg.ProgressDelay,
		establishDelay: cfg.EstablishDelay,
		timeout:        timeout,
		logger:         l,
		pending:        make(map[uuid.UUID]context.CancelFunc),
		root:           root,
		cancel:         cancel,
	}
}

// Dial schedules progress and establish reports for an outgoing call.
func (p *Provider) Dial(_ context.Context, call domain.Call) error {
	if call.Direction != domain.DirectionOutgoing {
		return nil
	}
	if err := p.root.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrUnavailable, "mock provider: closed")
	}

	p.mu.Lock()
	if _, ok := p.pending[call.ID]; ok {
		p.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(p.root)
	p.pending[call.ID] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.forget(call.ID)
		p.simulate(ctx, call.ID)
	}()
	return nil
}

// Hangup cancels any report still pending for the call.
func (p *Provider) Hangup(_ context.Context, callID uuid.UUID) error {
	p.mu.Lock()
	cancel, ok := p.pending[callID]
	delete(p.pending, callID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Close cancels every pending call and waits for the simulations to stop.
func (p *Provider) Close() error {
	p.cancel()
	p.wg.Wait()
	return nil
}

func (p *Provider) simulate(ctx context.Context, id uuid.UUID) {
	if !p.wait(ctx, p.progressDelay) {
		return
	}
	if !p.report(ctx, id, "progress", p.sink.Progress) {
		return
	}

	remaining := p.establishDelay - p.progressDelay
	if !p.wait(ctx, remaining) {
		return
	}
	p.report(ctx, id, "establish", p.sink.Establish)
}

func (p *Provider) report(ctx context.Context, id uuid.UUID, what string, fn func(context.Context, uuid.UUID) (domain.Call, error)) bool {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := fn(rctx, id)
	switch {
	case err == nil:
		return true
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrInvalidTransition):
		// the call ended or moved on while the SDK was working
		p.logger.Debug("mock provider: report skipped", zap.String("call_id", id.String()), zap.String("report", what), zap.Error(err))
		return false
	default:
		p.logger.Warn("mock provider: report failed", zap.String("call_id", id.String()), zap.String("report", what), zap.Error(err))
		return false
	}
}

func (p *Provider) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Provider) forget(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.pending[id]; ok {
		cancel()
		delete(p.pending, id)
	}
}

// Pending reports how many dialled calls still have reports outstanding.
func (p *Provider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
