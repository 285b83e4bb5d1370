package exporting

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/kcz17/statset/registry"
	"github.com/kcz17/statset/statistic"
	"github.com/sirupsen/logrus"
)

const (
	// cloudWatchMaxDatums is the PutMetricData limit on MetricData entries.
	cloudWatchMaxDatums = 20
	// cloudWatchMaxDimensions is the per-datum dimension limit.
	cloudWatchMaxDimensions = 10
)

type putMetricDataAPI interface {
	PutMetricDataWithContext(aws.Context, *cloudwatch.PutMetricDataInput, ...request.Option) (*cloudwatch.PutMetricDataOutput, error)
}

// cloudWatchExporter publishes windows as CloudWatch statistic sets, so one
// datum carries sum, count, min and max for the whole window.
type cloudWatchExporter struct {
	client    putMetricDataAPI
	namespace string
	logger    logrus.FieldLogger
}

func NewCloudWatchExporter(namespace, region string, logger logrus.FieldLogger) (*cloudWatchExporter, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("expected session.NewSession() returns nil err; got err = %w", err)
	}
	return newCloudWatchExporter(cloudwatch.New(sess), namespace, logger), nil
}

func newCloudWatchExporter(client putMetricDataAPI, namespace string, logger logrus.FieldLogger) *cloudWatchExporter {
	return &cloudWatchExporter{
		client:    client,
		namespace: namespace,
		logger:    logger.WithField("type", DriverCloudWatch),
	}
}

func (e *cloudWatchExporter) Export(ctx context.Context, windows []registry.Window) error {
	// CloudWatch rejects statistic sets with no samples.
	windows = nonEmpty(windows)

	var lastErr error
	failed := 0
	for start := 0; start < len(windows); start += cloudWatchMaxDatums {
		end := start + cloudWatchMaxDatums
		if end > len(windows) {
			end = len(windows)
		}

		input := &cloudwatch.PutMetricDataInput{Namespace: aws.String(e.namespace)}
		for _, w := range windows[start:end] {
			input.MetricData = append(input.MetricData, toMetricDatum(w))
		}

		if _, err := e.client.PutMetricDataWithContext(ctx, input); err != nil {
			e.logger.WithError(err).Debug("PutMetricData failed")
			lastErr = err
			failed++
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%d PutMetricData call(s) failed, activate debug logging to see each one: %w", failed, lastErr)
	}
	return nil
}

func (*cloudWatchExporter) Close() error {
	return nil
}

func toMetricDatum(w registry.Window) *cloudwatch.MetricDatum {
	datum := &cloudwatch.MetricDatum{
		MetricName: aws.String(w.Config.Name()),
		Timestamp:  aws.Time(w.Time),
		Unit:       aws.String(toStandardUnit(w.Unit)),
		StatisticValues: &cloudwatch.StatisticSet{
			Sum:         aws.Float64(w.Set.Sum),
			SampleCount: aws.Float64(w.Set.SampleCount),
			Minimum:     aws.Float64(w.Set.Minimum),
			Maximum:     aws.Float64(w.Set.Maximum),
		},
	}

	tags := fieldTags(w)
	names := make([]string, 0, len(tags))
	for name, value := range tags {
		if value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > cloudWatchMaxDimensions {
		names = names[:cloudWatchMaxDimensions]
	}

	for _, name := range names {
		datum.Dimensions = append(datum.Dimensions, &cloudwatch.Dimension{
			Name:  aws.String(name),
			Value: aws.String(tags[name]),
		})
	}
	return datum
}

// toStandardUnit maps a time unit to CloudWatch's unit names. CloudWatch has
// no unit for the remaining granularities.
func toStandardUnit(unit statistic.TimeUnit) string {
	switch unit {
	case statistic.Microseconds:
		return cloudwatch.StandardUnitMicroseconds
	case statistic.Milliseconds:
		return cloudwatch.StandardUnitMilliseconds
	case statistic.Seconds:
		return cloudwatch.StandardUnitSeconds
	default:
		return cloudwatch.StandardUnitNone
	}
}
