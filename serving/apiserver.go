package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackwhelpton/fasthttp-routing/v2"
	"github.com/kcz17/statset/registry"
	"github.com/valyala/fasthttp"
)

// Flusher forces an export of the current windows.
type Flusher interface {
	Flush(ctx context.Context) error
}

// APIServer exposes the registry's timers for inspection and lets operators
// force an export.
type APIServer struct {
	Registry *registry.Registry
	Flusher  Flusher
	// FlushTimeout bounds a forced flush. Zero means ten seconds.
	FlushTimeout time.Duration

	serverMux sync.Mutex
	server    *fasthttp.Server
}

// Handler routes:
//
//	GET  /timers       every timer's current window, without resetting
//	GET  /timers/<id>  one timer's current window
//	POST /flush        export and reset every window now
func (a *APIServer) Handler() fasthttp.RequestHandler {
	router := routing.New()

	router.Get("/timers", a.listTimersHandler())
	router.Get("/timers/<id:.+>", a.getTimerHandler())
	router.Post("/flush", a.flushHandler())

	return router.HandleRequest
}

func (a *APIServer) ListenAndServe(addr string) error {
	a.serverMux.Lock()
	if a.server != nil {
		a.serverMux.Unlock()
		return ErrServerAlreadyStarted
	}
	a.server = &fasthttp.Server{Handler: a.Handler()}
	server := a.server
	a.serverMux.Unlock()

	return server.ListenAndServe(addr)
}

func (a *APIServer) Shutdown() error {
	a.serverMux.Lock()
	server := a.server
	a.serverMux.Unlock()

	if server == nil {
		return ErrServerNotStarted
	}
	return server.Shutdown()
}

// timerResponse is the JSON form of a window.
type timerResponse struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Tags map[string]string `json:"tags"`
	Unit string            `json:"unit"`
	Time time.Time         `json:"time"`
	Sum  float64           `json:"sum"`
	// SampleCount is zero for an empty window, in which case the other
	// statistics are zero too.
	SampleCount float64 `json:"sampleCount"`
	Minimum     float64 `json:"minimum"`
	Maximum     float64 `json:"maximum"`
	Mean        float64 `json:"mean"`
}

func toTimerResponse(w registry.Window) timerResponse {
	return timerResponse{
		ID:          w.Config.ID(),
		Name:        w.Config.Name(),
		Tags:        w.Config.TagMap(),
		Unit:        w.Unit.String(),
		Time:        w.Time,
		Sum:         w.Set.Sum,
		SampleCount: w.Set.SampleCount,
		Minimum:     w.Set.Minimum,
		Maximum:     w.Set.Maximum,
		Mean:        w.Set.Mean(),
	}
}

func writeJSON(c *routing.Context, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal response: err = %w", err)
	}
	c.SetContentType("application/json")
	return c.Write(b)
}

func (a *APIServer) listTimersHandler() routing.Handler {
	return func(c *routing.Context) error {
		windows := a.Registry.Snapshot(false)
		response := make([]timerResponse, len(windows))
		for i, w := range windows {
			response[i] = toTimerResponse(w)
		}
		return writeJSON(c, response)
	}
}

func (a *APIServer) getTimerHandler() routing.Handler {
	return func(c *routing.Context) error {
		id := c.Param("id")
		timer, ok := a.Registry.Get(id)
		if !ok {
			c.SetStatusCode(http.StatusNotFound)
			return c.Write(fmt.Sprintf("timer %s not found\n", id))
		}

		return writeJSON(c, toTimerResponse(registry.Window{
			Config: timer.Config(),
			Unit:   timer.TimeUnit(),
			Set:    timer.Value(),
			Time:   time.Now(),
		}))
	}
}

func (a *APIServer) flushHandler() routing.Handler {
	return func(c *routing.Context) error {
		timeout := a.FlushTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := a.Flusher.Flush(ctx); err != nil {
			c.SetStatusCode(http.StatusInternalServerError)
			return c.Write(fmt.Sprintf("could not flush: err = %v\n", err))
		}
		return c.Write("flushed\n")
	}
}
