package exporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kcz17/statset/registry"
	"github.com/sirupsen/logrus"
)

var (
	ErrLoopAlreadyStarted = errors.New("export loop already started")
	ErrLoopNotStarted     = errors.New("export loop not started")
)

// LoopOptions configures a Loop.
type LoopOptions struct {
	Registry *registry.Registry
	Exporter Exporter
	Logger   logrus.FieldLogger
	Interval time.Duration
	// SkipEmpty drops windows which recorded no samples before exporting.
	SkipEmpty bool
	// Timeout bounds each export call. Zero means the interval.
	Timeout time.Duration
}

// Loop is the single logical exporter of a registry. Every interval it pulls
// and clears each timer's window and hands the windows to the exporter.
type Loop struct {
	registry  *registry.Registry
	exporter  Exporter
	logger    logrus.FieldLogger
	interval  time.Duration
	timeout   time.Duration
	skipEmpty bool

	// newTicker is replaced in tests to drive ticks by hand.
	newTicker func(d time.Duration) (<-chan time.Time, func())

	// flushMux serialises flushes so a manual Flush and a tick never export
	// out of order.
	flushMux *sync.Mutex

	// loopMux guards loopStarted; loopWG and loopStop allow the spawned
	// goroutine to be gracefully stopped.
	loopMux     *sync.Mutex
	loopStarted bool
	loopWG      *sync.WaitGroup
	loopStop    chan struct{}
}

func NewLoop(options *LoopOptions) *Loop {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = options.Interval
	}
	return &Loop{
		registry:  options.Registry,
		exporter:  options.Exporter,
		logger:    options.Logger.WithField("type", "export_loop"),
		interval:  options.Interval,
		timeout:   timeout,
		skipEmpty: options.SkipEmpty,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		},
		flushMux: &sync.Mutex{},
		loopMux:  &sync.Mutex{},
	}
}

func (l *Loop) Start() error {
	l.loopMux.Lock()
	defer l.loopMux.Unlock()
	if l.loopStarted {
		return ErrLoopAlreadyStarted
	}

	tick, stopTicker := l.newTicker(l.interval)
	l.loopStop = make(chan struct{})
	l.loopWG = &sync.WaitGroup{}
	l.loopWG.Add(1)
	go l.run(tick, stopTicker)

	l.loopStarted = true
	l.logger.WithField("interval", l.interval).Info("export loop started")
	return nil
}

// Stop halts the loop, then flushes once more so samples recorded since the
// last tick are exported rather than lost.
func (l *Loop) Stop(ctx context.Context) error {
	l.loopMux.Lock()
	if !l.loopStarted {
		l.loopMux.Unlock()
		return ErrLoopNotStarted
	}
	close(l.loopStop)
	l.loopWG.Wait()
	l.loopStarted = false
	l.loopMux.Unlock()

	err := l.Flush(ctx)
	l.logger.Info("export loop stopped")
	return err
}

// Flush exports the current window of every timer immediately and starts a
// new window.
func (l *Loop) Flush(ctx context.Context) error {
	l.flushMux.Lock()
	defer l.flushMux.Unlock()

	windows := l.registry.Snapshot(true)
	if l.skipEmpty {
		windows = nonEmpty(windows)
	}
	if len(windows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.exporter.Export(ctx, windows)
}

func (l *Loop) run(tick <-chan time.Time, stopTicker func()) {
	defer stopTicker()
	defer l.loopWG.Done()

	for {
		select {
		case <-tick:
			// Export errors are not fatal; the window is dropped and the next
			// one starts clean.
			if err := l.Flush(context.Background()); err != nil {
				l.logger.WithError(err).Error("export failed")
			}
		case <-l.loopStop:
			return
		}
	}
}
