package serving

import "sync"

const (
	// OtherPath is the path tag for requests whose path is not tracked.
	OtherPath = "other"
	// DefaultMaxPaths is used when ServerOptions.MaxPaths is not positive.
	DefaultMaxPaths = 100
)

// pathTagger bounds the number of distinct path tags. A path is admitted on
// its first successful (below 400) response while fewer than max paths are
// tracked; every other path is tagged OtherPath. Admitted paths are kept for
// the life of the server, as are their timers.
type pathTagger struct {
	mux   *sync.RWMutex
	max   int
	paths map[string]struct{}
}

func newPathTagger(max int) *pathTagger {
	if max <= 0 {
		max = DefaultMaxPaths
	}
	return &pathTagger{
		mux:   &sync.RWMutex{},
		max:   max,
		paths: map[string]struct{}{},
	}
}

func (p *pathTagger) tag(path string, statusCode int) string {
	p.mux.RLock()
	_, ok := p.paths[path]
	p.mux.RUnlock()
	if ok {
		return path
	}
	if statusCode >= 400 {
		return OtherPath
	}

	p.mux.Lock()
	defer p.mux.Unlock()
	if _, ok := p.paths[path]; ok {
		return path
	}
	if len(p.paths) >= p.max {
		return OtherPath
	}
	p.paths[path] = struct{}{}
	return path
}
