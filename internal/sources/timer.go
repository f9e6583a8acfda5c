package sources

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// timerSource emits a TimerTick event on a fixed interval. The original
// implementation has no equivalent plugin; a plain time.Ticker is the
// idiomatic Go shape and nothing in the example pack reaches for a
// scheduling library for this, so stdlib is correct here.
type timerSource struct {
	name            string
	interval        time.Duration
	intervalSeconds int
	tickCount       atomic.Uint64

	running atomic.Bool
	mu      sync.Mutex
	stop    chan struct{}
}

func newTimerSource(sc config.SourceConfig) (Source, error) {
	if sc.IntervalSeconds <= 0 {
		return nil, configErr("timer %q requires interval_seconds > 0", sc.Name)
	}
	return &timerSource{
		name:            sc.Name,
		interval:        time.Duration(sc.IntervalSeconds) * time.Second,
		intervalSeconds: sc.IntervalSeconds,
	}, nil
}

func (t *timerSource) Name() string { return t.name }

func (t *timerSource) Start(ctx context.Context, emit events.Emitter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running.Load() {
		return nil
	}
	t.stop = make(chan struct{})
	t.running.Store(true)
	go t.loop(ctx, emit)
	return nil
}

func (t *timerSource) loop(ctx context.Context, emit events.Emitter) {
	defer t.running.Store(false)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			count := t.tickCount.Add(1)
			ev := events.New(events.KindTimerTick, t.name).
				WithMetadata("interval_seconds", strconv.Itoa(t.intervalSeconds)).
				WithMetadata("tick_count", strconv.FormatUint(count, 10))
			emit.Emit(ev)
		}
	}
}

func (t *timerSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running.Load() {
		return nil
	}
	close(t.stop)
	t.running.Store(false)
	return nil
}

func (t *timerSource) IsRunning() bool { return t.running.Load() }
