package events_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-video-pipeline/events"
)

func TestMulti_FansOut(t *testing.T) {
	a, b := &events.Recorder{}, &events.Recorder{}
	m := events.Multi{a, nil, b, events.LogReporter{}}

	m.Report(context.Background(), events.Event{RunID: "r1", Stage: "planning", Progress: 10})
	m.Report(context.Background(), events.Event{RunID: "r1", Stage: "done", Progress: 100, Message: "ok"})

	assert.Equal(t, []string{"planning", "done"}, a.Stages())
	assert.Equal(t, a.Events, b.Events)
}

func TestRedisReporter_StoresLatest(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	runID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	defer rdb.Del(ctx, events.LatestKey(runID))

	sub := rdb.Subscribe(ctx, "pipeline:progress:"+runID)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	r := events.NewRedisReporter(rdb, "")
	r.Report(ctx, events.Event{RunID: runID, Stage: "imaging", Progress: 60})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"stage":"imaging"`)

	latest, err := events.Latest(ctx, rdb, runID)
	require.NoError(t, err)
	assert.Equal(t, 60, latest.Progress)
}
