package exporting

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/kcz17/statset/registry"
	"github.com/sirupsen/logrus"
)

// pointWriter is the subset of api.WriteAPI the exporter uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// influxDBExporter writes each window as one point to an external InfluxDB
// instance. Writes are asynchronous and batched by the client.
type influxDBExporter struct {
	client      influxdb2.Client
	asyncWriter pointWriter
}

func NewInfluxDBExporter(baseURL, authToken, org, bucket string, logger logrus.FieldLogger) *influxDBExporter {
	options := influxdb2.DefaultOptions()
	options.WriteOptions().SetBatchSize(1000)
	options.WriteOptions().SetFlushInterval(250)

	client := influxdb2.NewClientWithOptions(baseURL, authToken, options)
	writeAPI := client.WriteAPI(org, bucket)

	// Create a goroutine for reading and logging async write errors.
	errorsCh := writeAPI.Errors()
	log := logger.WithField("type", DriverInfluxDB)
	go func() {
		for err := range errorsCh {
			log.WithError(err).Warn("async write error")
		}
	}()

	return &influxDBExporter{
		client:      client,
		asyncWriter: writeAPI,
	}
}

func (e *influxDBExporter) Export(_ context.Context, windows []registry.Window) error {
	for _, w := range windows {
		e.asyncWriter.WritePoint(toPoint(w))
	}
	return nil
}

func (e *influxDBExporter) Close() error {
	e.asyncWriter.Flush()
	if e.client != nil {
		e.client.Close()
	}
	return nil
}

func toPoint(w registry.Window) *write.Point {
	return influxdb2.NewPoint(
		w.Config.Name(),
		w.Config.TagMap(),
		map[string]interface{}{
			"sum":   w.Set.Sum,
			"count": w.Set.SampleCount,
			"min":   w.Set.Minimum,
			"max":   w.Set.Maximum,
		},
		w.Time,
	)
}
