package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/kcz17/statset/statistic"
)

// Window is the exported aggregate of one timer over one reporting window.
type Window struct {
	Config statistic.MonitorConfig
	Unit   statistic.TimeUnit
	Set    statistic.StatisticSet
	Time   time.Time
}

// Registry owns the timers of a process, keyed by their config ID. The
// registry lock only guards the map; recording goes straight to the timer.
type Registry struct {
	timers map[string]*statistic.Timer
	mux    *sync.RWMutex
	now    func() time.Time
}

func New() *Registry {
	return &Registry{
		timers: map[string]*statistic.Timer{},
		mux:    &sync.RWMutex{},
		now:    time.Now,
	}
}

// Timer returns the timer registered for config and unit, creating it on
// first use. The unit is part of the identity, so the same name and tags in
// two units yields two timers.
func (r *Registry) Timer(config statistic.MonitorConfig, unit statistic.TimeUnit) *statistic.Timer {
	id := statistic.TimerConfig(config, unit).ID()

	r.mux.RLock()
	timer, ok := r.timers[id]
	r.mux.RUnlock()
	if ok {
		return timer
	}

	r.mux.Lock()
	defer r.mux.Unlock()
	if timer, ok := r.timers[id]; ok {
		return timer
	}
	timer = statistic.NewTimerWithUnit(config, unit)
	r.timers[id] = timer
	return timer
}

// Get looks up a timer by its config ID.
func (r *Registry) Get(id string) (*statistic.Timer, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	timer, ok := r.timers[id]
	return timer, ok
}

func (r *Registry) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.timers)
}

// Each calls fn for every timer in ID order. fn runs without the registry
// lock held, so it may create timers.
func (r *Registry) Each(fn func(*statistic.Timer)) {
	for _, timer := range r.sorted() {
		fn(timer)
	}
}

// Snapshot reads every timer, resetting them when reset is true. Each timer is
// read atomically on its own; windows of different timers are not taken at
// one instant.
func (r *Registry) Snapshot(reset bool) []Window {
	now := r.now()
	timers := r.sorted()
	windows := make([]Window, 0, len(timers))
	for _, timer := range timers {
		var set statistic.StatisticSet
		if reset {
			set = timer.ValueAndReset()
		} else {
			set = timer.Value()
		}
		windows = append(windows, Window{
			Config: timer.Config(),
			Unit:   timer.TimeUnit(),
			Set:    set,
			Time:   now,
		})
	}
	return windows
}

func (r *Registry) sorted() []*statistic.Timer {
	r.mux.RLock()
	timers := make([]*statistic.Timer, 0, len(r.timers))
	for _, timer := range r.timers {
		timers = append(timers, timer)
	}
	r.mux.RUnlock()

	sort.Slice(timers, func(i, j int) bool {
		return timers[i].Config().ID() < timers[j].Config().ID()
	})
	return timers
}
