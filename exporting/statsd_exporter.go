package exporting

import (
	"context"
	"fmt"
	"sort"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/kcz17/statset/registry"
	"github.com/sirupsen/logrus"
)

type statsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Close() error
}

// statsdExporter sends each window as gauges for sum, min and max plus a count
// increment for the number of samples.
type statsdExporter struct {
	client statsdClient
	logger logrus.FieldLogger
}

func NewStatsdExporter(addr, namespace string, bufferSize int, logger logrus.FieldLogger) (*statsdExporter, error) {
	client, err := statsd.NewBuffered(addr, bufferSize)
	if err != nil {
		return nil, fmt.Errorf("expected statsd.NewBuffered(addr = %s) returns nil err; got err = %w", addr, err)
	}
	if namespace != "" {
		client.Namespace = namespace + "."
	}
	return newStatsdExporter(client, logger), nil
}

func newStatsdExporter(client statsdClient, logger logrus.FieldLogger) *statsdExporter {
	return &statsdExporter{
		client: client,
		logger: logger.WithField("type", DriverStatsd),
	}
}

func (e *statsdExporter) Export(_ context.Context, windows []registry.Window) error {
	var errorCount int
	var lastErr error
	for _, w := range nonEmpty(windows) {
		name := w.Config.Name()
		tags := toStatsdTags(w.Config.TagMap())

		for _, err := range []error{
			e.client.Gauge(name+".sum", w.Set.Sum, tags, 1),
			e.client.Gauge(name+".min", w.Set.Minimum, tags, 1),
			e.client.Gauge(name+".max", w.Set.Maximum, tags, 1),
			e.client.Count(name+".count", int64(w.Set.SampleCount), tags, 1),
		} {
			if err != nil {
				e.logger.WithError(err).Debug("error while sending metric")
				errorCount++
				lastErr = err
			}
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%d statsd sends failed: %w", errorCount, lastErr)
	}
	return nil
}

func (e *statsdExporter) Close() error {
	return e.client.Close()
}

func toStatsdTags(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
