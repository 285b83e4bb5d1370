package exporting

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/kcz17/statset/registry"
	"github.com/kcz17/statset/statistic"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatchClient struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatchClient) PutMetricDataWithContext(_ aws.Context, in *cloudwatch.PutMetricDataInput, _ ...request.Option) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchExporter_Export_PutsStatisticSets(t *testing.T) {
	client := &fakeCloudWatchClient{}
	logger, _ := test.NewNullLogger()
	e := newCloudWatchExporter(client, "some/namespace", logger)

	windows := []registry.Window{
		testWindow("latency", nonEmptySet, statistic.Tag{Key: "method", Value: "GET"}, statistic.Tag{Key: "group", Value: ""}),
		testWindow("idle", emptySet),
	}
	require.NoError(t, e.Export(context.Background(), windows))

	assert.Equal(t, []*cloudwatch.PutMetricDataInput{{
		Namespace: aws.String("some/namespace"),
		MetricData: []*cloudwatch.MetricDatum{{
			MetricName: aws.String("latency"),
			Timestamp:  aws.Time(testTime),
			Unit:       aws.String(cloudwatch.StandardUnitMilliseconds),
			StatisticValues: &cloudwatch.StatisticSet{
				Sum:         aws.Float64(30),
				SampleCount: aws.Float64(3),
				Minimum:     aws.Float64(5),
				Maximum:     aws.Float64(15),
			},
			Dimensions: []*cloudwatch.Dimension{{
				Name:  aws.String("method"),
				Value: aws.String("GET"),
			}},
		}},
	}}, client.inputs)
}

func TestCloudWatchExporter_Export_BatchesTwentyDatumsPerCall(t *testing.T) {
	client := &fakeCloudWatchClient{}
	logger, _ := test.NewNullLogger()
	e := newCloudWatchExporter(client, "ns", logger)

	var windows []registry.Window
	for i := 0; i < 45; i++ {
		windows = append(windows, testWindow(fmt.Sprintf("timer_%02d", i), nonEmptySet))
	}
	require.NoError(t, e.Export(context.Background(), windows))

	require.Len(t, client.inputs, 3)
	assert.Len(t, client.inputs[0].MetricData, 20)
	assert.Len(t, client.inputs[1].MetricData, 20)
	assert.Len(t, client.inputs[2].MetricData, 5)
}

func TestCloudWatchExporter_Export_ReturnsLastError(t *testing.T) {
	errThrottled := errors.New("Throttling: Rate exceeded")
	client := &fakeCloudWatchClient{err: errThrottled}
	logger, _ := test.NewNullLogger()
	e := newCloudWatchExporter(client, "ns", logger)

	err := e.Export(context.Background(), []registry.Window{testWindow("latency", nonEmptySet)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errThrottled))
}

func TestToMetricDatum_LimitsDimensionsToTen(t *testing.T) {
	var tags []statistic.Tag
	for i := 0; i < 12; i++ {
		tags = append(tags, statistic.Tag{Key: fmt.Sprintf("tag_%02d", i), Value: "v"})
	}

	datum := toMetricDatum(testWindow("latency", nonEmptySet, tags...))
	require.Len(t, datum.Dimensions, 10)
	assert.Equal(t, "tag_00", *datum.Dimensions[0].Name)
}

func TestToStandardUnit(t *testing.T) {
	assert.Equal(t, cloudwatch.StandardUnitMicroseconds, toStandardUnit(statistic.Microseconds))
	assert.Equal(t, cloudwatch.StandardUnitSeconds, toStandardUnit(statistic.Seconds))
	assert.Equal(t, cloudwatch.StandardUnitNone, toStandardUnit(statistic.Hours))
}
