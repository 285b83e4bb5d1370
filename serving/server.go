package serving

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kcz17/statset/filters"
	"github.com/kcz17/statset/registry"
	"github.com/kcz17/statset/statistic"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

var (
	ErrServerAlreadyStarted = errors.New("server already started")
	ErrServerNotStarted     = errors.New("server not started")
)

type ServerOptions struct {
	Logger       logrus.FieldLogger
	FrontendAddr string
	BackendAddr  string
	MaxConns     int
	// Dial overrides how connections to the backend are made. Nil uses TCP.
	Dial fasthttp.DialFunc

	Registry *registry.Registry
	// TimerName names every timer the server records to.
	TimerName string
	Unit      statistic.TimeUnit
	// GroupByPath adds a path tag, giving each path its own timer.
	GroupByPath bool
	// MaxPaths caps the distinct path tags when grouping by path. Zero means
	// DefaultMaxPaths.
	MaxPaths int
	// Clock defaults to the realtime clock.
	Clock statistic.Clock
	// Exclude lists requests which are proxied but not timed. Nil times
	// every request.
	Exclude *filters.RequestFilter
}

// Server is a timing reverse proxy. Every proxied request is measured with a
// Stopwatch and recorded to the registry timer for its method, path and
// status class.
type Server struct {
	logger   logrus.FieldLogger
	proxying struct {
		FrontendAddr string
		// server and proxy implement our reverse proxy, allowing requests
		// to be forwarded to the backend host.
		server *fasthttp.Server
		proxy  *fasthttp.HostClient
	}
	timing struct {
		Registry    *registry.Registry
		Config      statistic.MonitorConfig
		Unit        statistic.TimeUnit
		GroupByPath bool
		Paths       *pathTagger
		Clock       statistic.Clock
		Exclude     *filters.RequestFilter
	}
	// isStarted is checked to ensure each Server is only ever started once.
	isStarted bool
	// externalOperationsLock guards external operations which interact with the server.
	externalOperationsLock *sync.Mutex
}

func NewServer(options *ServerOptions) *Server {
	s := &Server{
		logger:                 options.Logger.WithField("type", "server"),
		externalOperationsLock: &sync.Mutex{},
	}

	s.proxying.FrontendAddr = options.FrontendAddr
	s.proxying.proxy = &fasthttp.HostClient{
		Addr:     options.BackendAddr,
		MaxConns: options.MaxConns,
		Dial:     options.Dial,
	}

	s.timing.Registry = options.Registry
	s.timing.Config = statistic.NewMonitorConfig(options.TimerName)
	s.timing.Unit = options.Unit
	s.timing.GroupByPath = options.GroupByPath
	s.timing.Paths = newPathTagger(options.MaxPaths)
	s.timing.Clock = options.Clock
	s.timing.Exclude = options.Exclude
	if s.timing.Exclude == nil {
		s.timing.Exclude = filters.NewRequestFilter()
	}
	if s.timing.Clock == nil {
		s.timing.Clock = statistic.NewRealtimeClock()
	}

	return s
}

// ListenAndServe blocks serving the proxy on the frontend address until
// Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp4", s.proxying.FrontendAddr)
	if err != nil {
		return fmt.Errorf("expected net.Listen(addr = %s) returns nil err; got err = %w", s.proxying.FrontendAddr, err)
	}
	return s.Serve(ln)
}

// Serve blocks serving the proxy on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.externalOperationsLock.Lock()
	if s.isStarted {
		s.externalOperationsLock.Unlock()
		return ErrServerAlreadyStarted
	}
	s.proxying.server = &fasthttp.Server{
		Handler:         s.requestHandler(),
		CloseOnShutdown: true,
	}
	s.isStarted = true
	server := s.proxying.server
	s.externalOperationsLock.Unlock()

	s.logger.WithField("addr", ln.Addr().String()).Info("proxy listening")
	if err := server.Serve(ln); err != nil {
		return fmt.Errorf("Server.Serve() got fasthttp server error: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	s.externalOperationsLock.Lock()
	if !s.isStarted {
		s.externalOperationsLock.Unlock()
		return ErrServerNotStarted
	}
	server := s.proxying.server
	s.externalOperationsLock.Unlock()

	return server.Shutdown()
}

// requestRecorder lets a Stopwatch start before the timer is known. The timer
// depends on the response status, so it is chosen once the backend replies.
type requestRecorder struct {
	timer *statistic.Timer
}

func (r *requestRecorder) RecordDuration(d time.Duration) {
	r.timer.RecordDuration(d)
}

func (s *Server) requestHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		// Remove connection header per RFC2616.
		ctx.Request.Header.Del("Connection")

		if s.timing.Exclude.Matches(string(ctx.Path()), string(ctx.Method())) {
			s.proxy(ctx)
			return
		}

		recorder := &requestRecorder{}
		stopwatch := statistic.StartWithClock(recorder, s.timing.Clock)
		s.proxy(ctx)

		recorder.timer = s.timing.Registry.Timer(s.requestConfig(ctx), s.timing.Unit)
		if _, err := stopwatch.Stop(); err != nil {
			s.logger.WithError(err).Error("could not record request duration")
		}
	}
}

// proxy forwards the request to the backend, replying 502 if the backend
// cannot be reached.
func (s *Server) proxy(ctx *fasthttp.RequestCtx) {
	resp := &ctx.Response
	if err := s.proxying.proxy.Do(&ctx.Request, resp); err != nil {
		s.logger.WithError(err).Warn("error when proxying the request")
		resp.Reset()
		ctx.SetStatusCode(http.StatusBadGateway)
	}

	// Remove connection header per RFC2616.
	resp.Header.Del("Connection")
}

// requestConfig tags the server's timer config with the request method, the
// path when grouping by path, and the response status class. Paths beyond the
// tracked set are tagged OtherPath.
func (s *Server) requestConfig(ctx *fasthttp.RequestCtx) statistic.MonitorConfig {
	statusCode := ctx.Response.StatusCode()
	tags := []statistic.Tag{
		{Key: "method", Value: string(ctx.Method())},
		{Key: "status", Value: StatusClass(statusCode)},
	}
	if s.timing.GroupByPath {
		tags = append(tags, statistic.Tag{Key: "path", Value: s.timing.Paths.tag(string(ctx.Path()), statusCode)})
	}
	return s.timing.Config.WithTags(tags...)
}

// StatusClass returns the class of an HTTP status code, such as "2xx".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
