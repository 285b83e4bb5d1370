package exporting

import (
	"context"

	"github.com/kcz17/statset/registry"
	"github.com/sirupsen/logrus"
)

// stdoutExporter logs each window through logrus.
type stdoutExporter struct {
	logger logrus.FieldLogger
}

func NewStdoutExporter(logger logrus.FieldLogger) *stdoutExporter {
	return &stdoutExporter{logger: logger.WithField("type", DriverStdout)}
}

func (e *stdoutExporter) Export(_ context.Context, windows []registry.Window) error {
	for _, w := range windows {
		e.logger.WithFields(logrus.Fields{
			"timer": w.Config.ID(),
			"sum":   w.Set.Sum,
			"count": w.Set.SampleCount,
			"min":   w.Set.Minimum,
			"max":   w.Set.Maximum,
		}).Info("window")
	}
	return nil
}

func (*stdoutExporter) Close() error {
	return nil
}
