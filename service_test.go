package apool_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/viant/apool"
	"github.com/viant/apool/model/option"
	"github.com/viant/apool/service/event"
)

func TestService(t *testing.T) {
	spawned := make(chan *event.Event, 4)
	srv, err := apool.New(
		apool.WithCheckInvariants(),
		apool.WithMetricsRegisterer(prometheus.NewRegistry()),
		apool.WithEventHandler(func(evt *event.Event) {
			if evt.Kind == event.ProcessSpawned {
				select {
				case spawned <- evt:
				default:
				}
			}
		}),
	)
	assert.Nil(t, err)

	runtime := srv.Runtime()
	ctx := context.Background()
	assert.Nil(t, runtime.Start(ctx))
	defer runtime.Shutdown(context.Background())

	opts := option.New("/srv/demo")
	opts.AppType = apool.AppTypeMemory
	session, err := runtime.GetSession(ctx, opts)
	assert.Nil(t, err)
	assert.NotNil(t, session)
	session.Close()

	assert.Equal(t, 1, runtime.ProcessCount())
	snapshot := runtime.Inspect()
	assert.Len(t, snapshot.Groups, 1)
	assert.Equal(t, "/srv/demo", snapshot.Groups[0].Name)

	select {
	case evt := <-spawned:
		assert.Equal(t, "/srv/demo", evt.AppGroupName)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "spawn event was never dispatched")
	}

	assert.Nil(t, runtime.DetachGroup("/srv/demo"))
	assert.Equal(t, 0, runtime.ProcessCount())
}

func TestService_RejectsInvalidConfig(t *testing.T) {
	_, err := apool.New(apool.WithMaxProcesses(-1))
	assert.NotNil(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	location := filepath.Join(dir, "apool.yaml")
	data := []byte("maxProcesses: 12\ngcInterval: 1m\nanalyticsInterval: 10s\n")
	assert.Nil(t, os.WriteFile(location, data, 0o644))

	config, err := apool.LoadConfig(context.Background(), location)
	assert.Nil(t, err)
	assert.Equal(t, 12, config.MaxProcesses)
	assert.Equal(t, time.Minute, config.GCInterval)
	assert.Equal(t, 10*time.Second, config.AnalyticsInterval)

	_, err = apool.LoadConfig(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.NotNil(t, err)
}
