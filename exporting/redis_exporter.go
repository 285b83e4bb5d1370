package exporting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/adjust/rmq/v3"
	"github.com/go-redis/redis/v7"
	"github.com/kcz17/statset/registry"
	"github.com/sirupsen/logrus"
)

// windowPayload is the JSON document published for each window.
type windowPayload struct {
	Name        string            `json:"name"`
	Tags        map[string]string `json:"tags"`
	Unit        string            `json:"unit"`
	Time        int64             `json:"time"`
	Sum         float64           `json:"sum"`
	SampleCount float64           `json:"sampleCount"`
	Minimum     float64           `json:"minimum"`
	Maximum     float64           `json:"maximum"`
}

type bytesPublisher interface {
	PublishBytes(payload ...[]byte) error
}

// redisExporter publishes windows onto an rmq queue so that downstream
// consumers can process them at their own pace.
type redisExporter struct {
	client *redis.Client
	queue  bytesPublisher

	// stop ends the goroutine logging rmq background errors; drained is
	// closed once it has returned.
	stop      chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
}

func NewRedisExporter(addr, password string, db int, queueName string, logger logrus.FieldLogger) (*redisExporter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("expected redis ping to %s returns nil err; got err = %w", addr, err)
	}

	// rmq's heartbeat keeps sending on errorsCh for the life of the process,
	// so it is never closed; the logging goroutine is stopped instead.
	errorsCh := make(chan error, 10)
	connection, err := rmq.OpenConnectionWithRedisClient("statset", client, errorsCh)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("expected rmq.OpenConnectionWithRedisClient() returns nil err; got err = %w", err)
	}
	queue, err := connection.OpenQueue(queueName)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("expected connection.OpenQueue(%s) returns nil err; got err = %w", queueName, err)
	}

	return newRedisExporter(client, queue, errorsCh, logger), nil
}

func newRedisExporter(client *redis.Client, queue bytesPublisher, errorsCh <-chan error, logger logrus.FieldLogger) *redisExporter {
	e := &redisExporter{
		client:  client,
		queue:   queue,
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	// Create a goroutine for reading and logging rmq background errors.
	log := logger.WithField("type", DriverRedis)
	go func() {
		defer close(e.drained)
		for {
			select {
			case err := <-errorsCh:
				log.WithError(err).Warn("rmq background error")
			case <-e.stop:
				return
			}
		}
	}()

	return e
}

func (e *redisExporter) Export(_ context.Context, windows []registry.Window) error {
	if len(windows) == 0 {
		return nil
	}

	payloads := make([][]byte, 0, len(windows))
	for _, w := range windows {
		b, err := json.Marshal(toWindowPayload(w))
		if err != nil {
			return fmt.Errorf("could not marshal window %s: err = %w", w.Config.ID(), err)
		}
		payloads = append(payloads, b)
	}

	if err := e.queue.PublishBytes(payloads...); err != nil {
		return fmt.Errorf("could not publish %d windows: err = %w", len(payloads), err)
	}
	return nil
}

func (e *redisExporter) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.stop)
		<-e.drained
		if e.client != nil {
			err = e.client.Close()
		}
	})
	return err
}

func toWindowPayload(w registry.Window) windowPayload {
	return windowPayload{
		Name:        w.Config.Name(),
		Tags:        fieldTags(w),
		Unit:        w.Unit.String(),
		Time:        w.Time.UnixNano(),
		Sum:         w.Set.Sum,
		SampleCount: w.Set.SampleCount,
		Minimum:     w.Set.Minimum,
		Maximum:     w.Set.Maximum,
	}
}
