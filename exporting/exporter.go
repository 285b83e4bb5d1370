package exporting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kcz17/statset/registry"
)

// Exporter ships reporting windows to a monitoring backend. Export receives
// the authoritative delta for each timer; exporters must not assume the same
// window is ever delivered twice.
type Exporter interface {
	Export(ctx context.Context, windows []registry.Window) error
	Close() error
}

// Driver names accepted by configuration.
const (
	DriverNoop       = "noop"
	DriverStdout     = "stdout"
	DriverInfluxDB   = "influxdb"
	DriverCloudWatch = "cloudwatch"
	DriverStatsd     = "statsd"
	DriverRedis      = "redis"
)

// noopExporter does not export anything.
type noopExporter struct{}

func NewNoopExporter() *noopExporter {
	return &noopExporter{}
}

func (*noopExporter) Export(context.Context, []registry.Window) error {
	return nil
}

func (*noopExporter) Close() error {
	return nil
}

// multiExporter fans each export out to several exporters. Every exporter is
// attempted even if an earlier one fails.
type multiExporter struct {
	exporters []Exporter
}

func NewMultiExporter(exporters ...Exporter) *multiExporter {
	return &multiExporter{exporters: exporters}
}

func (m *multiExporter) Export(ctx context.Context, windows []registry.Window) error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Export(ctx, windows); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("export", errs)
}

func (m *multiExporter) Close() error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors("close", errs)
}

type multiError struct {
	op   string
	errs []error
}

func (e *multiError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d exporter(s) failed to %s: %s", len(e.errs), e.op, strings.Join(msgs, "; "))
}

// Is lets errors.Is match any of the wrapped errors.
func (e *multiError) Is(target error) bool {
	for _, err := range e.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func joinErrors(op string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &multiError{op: op, errs: errs}
}

// nonEmpty drops windows which recorded no samples.
func nonEmpty(windows []registry.Window) []registry.Window {
	out := make([]registry.Window, 0, len(windows))
	for _, w := range windows {
		if !w.Set.IsEmpty() {
			out = append(out, w)
		}
	}
	return out
}

// fieldTags returns the window's tags without the unit tag, which exporters
// carry in a backend-specific way instead.
func fieldTags(w registry.Window) map[string]string {
	tags := w.Config.TagMap()
	delete(tags, "unit")
	return tags
}
