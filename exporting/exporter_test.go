package exporting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/kcz17/statset/registry"
	"github.com/kcz17/statset/statistic"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testTime = time.Date(2021, 5, 22, 11, 20, 46, 0, time.UTC)

func testWindow(name string, set statistic.StatisticSet, tags ...statistic.Tag) registry.Window {
	return registry.Window{
		Config: statistic.TimerConfig(statistic.NewMonitorConfig(name, tags...), statistic.Milliseconds),
		Unit:   statistic.Milliseconds,
		Set:    set,
		Time:   testTime,
	}
}

var (
	nonEmptySet = statistic.StatisticSet{Sum: 30, SampleCount: 3, Minimum: 5, Maximum: 15}
	emptySet    = statistic.StatisticSet{}
)

type fakeExporter struct {
	exported [][]registry.Window
	err      error
	closed   bool
}

func (f *fakeExporter) Export(_ context.Context, windows []registry.Window) error {
	f.exported = append(f.exported, windows)
	return f.err
}

func (f *fakeExporter) Close() error {
	f.closed = true
	return f.err
}

func TestMultiExporter_Export_AttemptsEveryExporter(t *testing.T) {
	errBoom := errors.New("boom")
	failing := &fakeExporter{err: errBoom}
	healthy := &fakeExporter{}
	m := NewMultiExporter(failing, healthy)

	windows := []registry.Window{testWindow("latency", nonEmptySet)}
	err := m.Export(context.Background(), windows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.Contains(t, err.Error(), "1 exporter(s) failed to export")
	assert.Equal(t, [][]registry.Window{windows}, healthy.exported)

	assert.Error(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, healthy.closed)
}

func TestMultiExporter_Export_NilWhenAllSucceed(t *testing.T) {
	m := NewMultiExporter(&fakeExporter{}, NewNoopExporter())
	assert.NoError(t, m.Export(context.Background(), nil))
	assert.NoError(t, m.Close())
}

func TestStdoutExporter_Export_LogsEveryWindow(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := NewStdoutExporter(logger)

	require.NoError(t, e.Export(context.Background(), []registry.Window{
		testWindow("a", nonEmptySet),
		testWindow("b", emptySet),
	}))

	require.Len(t, hook.Entries, 2)
	entry := hook.Entries[0]
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "a{unit=MILLISECONDS}", entry.Data["timer"])
	assert.Equal(t, float64(30), entry.Data["sum"])
	assert.Equal(t, float64(3), entry.Data["count"])
	assert.Equal(t, DriverStdout, entry.Data["type"])
}

type fakePointWriter struct {
	points  []*write.Point
	flushed bool
}

func (f *fakePointWriter) WritePoint(p *write.Point) {
	f.points = append(f.points, p)
}

func (f *fakePointWriter) Flush() {
	f.flushed = true
}

func TestInfluxDBExporter_Export_WritesOnePointPerWindow(t *testing.T) {
	writer := &fakePointWriter{}
	e := &influxDBExporter{asyncWriter: writer}

	require.NoError(t, e.Export(context.Background(), []registry.Window{
		testWindow("latency", nonEmptySet, statistic.Tag{Key: "path", Value: "/cart"}),
	}))
	require.Len(t, writer.points, 1)

	p := writer.points[0]
	assert.Equal(t, "latency", p.Name())
	assert.Equal(t, testTime, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"path": "/cart", "unit": "MILLISECONDS"}, tags)

	fields := map[string]interface{}{}
	for _, field := range p.FieldList() {
		fields[field.Key] = field.Value
	}
	assert.Equal(t, map[string]interface{}{"sum": 30.0, "count": 3.0, "min": 5.0, "max": 15.0}, fields)

	require.NoError(t, e.Close())
	assert.True(t, writer.flushed)
}

type fakeStatsdCall struct {
	Kind  string
	Name  string
	Value float64
	Tags  []string
}

type fakeStatsdClient struct {
	calls  []fakeStatsdCall
	err    error
	closed bool
}

func (f *fakeStatsdClient) Gauge(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, fakeStatsdCall{Kind: "gauge", Name: name, Value: value, Tags: tags})
	return f.err
}

func (f *fakeStatsdClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, fakeStatsdCall{Kind: "count", Name: name, Value: float64(value), Tags: tags})
	return f.err
}

func (f *fakeStatsdClient) Close() error {
	f.closed = true
	return nil
}

func TestStatsdExporter_Export_SendsFourMetricsPerWindow(t *testing.T) {
	client := &fakeStatsdClient{}
	logger, _ := test.NewNullLogger()
	e := newStatsdExporter(client, logger)

	require.NoError(t, e.Export(context.Background(), []registry.Window{
		testWindow("latency", nonEmptySet, statistic.Tag{Key: "method", Value: "GET"}),
		testWindow("idle", emptySet),
	}))

	tags := []string{"method:GET", "unit:MILLISECONDS"}
	assert.Equal(t, []fakeStatsdCall{
		{Kind: "gauge", Name: "latency.sum", Value: 30, Tags: tags},
		{Kind: "gauge", Name: "latency.min", Value: 5, Tags: tags},
		{Kind: "gauge", Name: "latency.max", Value: 15, Tags: tags},
		{Kind: "count", Name: "latency.count", Value: 3, Tags: tags},
	}, client.calls)

	require.NoError(t, e.Close())
	assert.True(t, client.closed)
}

func TestStatsdExporter_Export_ReportsSendErrors(t *testing.T) {
	client := &fakeStatsdClient{err: errors.New("write: connection refused")}
	logger, _ := test.NewNullLogger()
	e := newStatsdExporter(client, logger)

	err := e.Export(context.Background(), []registry.Window{testWindow("latency", nonEmptySet)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 statsd sends failed")
}

type fakePublisher struct {
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishBytes(payload ...[]byte) error {
	f.payloads = append(f.payloads, payload...)
	return f.err
}

func TestRedisExporter_Export_PublishesJSONWindows(t *testing.T) {
	queue := &fakePublisher{}
	logger, _ := test.NewNullLogger()
	e := newRedisExporter(nil, queue, nil, logger)

	require.NoError(t, e.Export(context.Background(), []registry.Window{
		testWindow("latency", nonEmptySet, statistic.Tag{Key: "path", Value: "/"}),
	}))
	require.Len(t, queue.payloads, 1)

	var got windowPayload
	require.NoError(t, json.Unmarshal(queue.payloads[0], &got))
	assert.Equal(t, windowPayload{
		Name:        "latency",
		Tags:        map[string]string{"path": "/"},
		Unit:        "MILLISECONDS",
		Time:        testTime.UnixNano(),
		Sum:         30,
		SampleCount: 3,
		Minimum:     5,
		Maximum:     15,
	}, got)

	assert.NoError(t, e.Export(context.Background(), nil))
	assert.Len(t, queue.payloads, 1, "no windows means no publish")
	assert.NoError(t, e.Close())
}

func TestRedisExporter_Export_WrapsPublishError(t *testing.T) {
	errDown := errors.New("redis down")
	logger, _ := test.NewNullLogger()
	e := newRedisExporter(nil, &fakePublisher{err: errDown}, nil, logger)

	err := e.Export(context.Background(), []registry.Window{testWindow("latency", nonEmptySet)})
	assert.True(t, errors.Is(err, errDown))
	assert.NoError(t, e.Close())
}

func TestRedisExporter_Close_StopsErrorLogging(t *testing.T) {
	defer goleak.VerifyNone(t)

	logger, hook := test.NewNullLogger()
	errorsCh := make(chan error, 1)
	e := newRedisExporter(nil, &fakePublisher{}, errorsCh, logger)

	errorsCh <- errors.New("heartbeat failed")
	assert.Eventually(t, func() bool {
		return len(hook.AllEntries()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "rmq background error", hook.LastEntry().Message)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "closing twice is a no-op")

	// A late error after Close is not read and does not panic.
	errorsCh <- errors.New("late")
	assert.Len(t, hook.AllEntries(), 1)
}
