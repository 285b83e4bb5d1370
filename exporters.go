package main

import (
	"fmt"

	"github.com/kcz17/statset/config"
	"github.com/kcz17/statset/exporting"
	"github.com/sirupsen/logrus"
)

// newExporter builds one exporter per configured driver. Exporters built
// before a failure are closed.
func newExporter(conf config.Exporting, logger logrus.FieldLogger) (exporting.Exporter, error) {
	var exporters []exporting.Exporter
	fail := func(err error) (exporting.Exporter, error) {
		for _, e := range exporters {
			_ = e.Close()
		}
		return nil, err
	}

	for _, driver := range conf.Drivers {
		switch driver {
		case exporting.DriverNoop:
			exporters = append(exporters, exporting.NewNoopExporter())
		case exporting.DriverStdout:
			exporters = append(exporters, exporting.NewStdoutExporter(logger))
		case exporting.DriverInfluxDB:
			c := conf.InfluxDB
			exporters = append(exporters, exporting.NewInfluxDBExporter(*c.Host, *c.Token, *c.Org, *c.Bucket, logger))
		case exporting.DriverCloudWatch:
			c := conf.CloudWatch
			e, err := exporting.NewCloudWatchExporter(*c.Namespace, *c.Region, logger)
			if err != nil {
				return fail(err)
			}
			exporters = append(exporters, e)
		case exporting.DriverStatsd:
			c := conf.Statsd
			e, err := exporting.NewStatsdExporter(*c.Addr, *c.Namespace, *c.BufferSize, logger)
			if err != nil {
				return fail(err)
			}
			exporters = append(exporters, e)
		case exporting.DriverRedis:
			c := conf.Redis
			e, err := exporting.NewRedisExporter(*c.Addr, *c.Password, *c.DB, *c.Queue, logger)
			if err != nil {
				return fail(err)
			}
			exporters = append(exporters, e)
		default:
			return fail(fmt.Errorf("expected exporting.drivers one of {noop, stdout, influxdb, cloudwatch, statsd, redis}; got %s", driver))
		}
	}

	if len(exporters) == 1 {
		return exporters[0], nil
	}
	return exporting.NewMultiExporter(exporters...), nil
}
