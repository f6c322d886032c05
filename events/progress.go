package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one stage transition of a run
type Event struct {
	RunID    string    `json:"run_id"`
	Stage    string    `json:"stage"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Reporter receives progress events. Reporting never fails a run.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// LogReporter writes events to the standard logger
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, ev Event) {
	if ev.Message != "" {
		log.Printf("[pipeline] %s %-12s %3d%%  %s", ev.RunID, ev.Stage, ev.Progress, ev.Message)
		return
	}
	log.Printf("[pipeline] %s %-12s %3d%%", ev.RunID, ev.Stage, ev.Progress)
}

// Multi fans an event out to several reporters
type Multi []Reporter

func (m Multi) Report(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, ev)
		}
	}
}

// RedisReporter publishes events on a channel per run and on a global channel,
// and keeps the latest event per run for 24h
type RedisReporter struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

func NewRedisReporter(client *redis.Client, channel string) *RedisReporter {
	if channel == "" {
		channel = "pipeline:progress"
	}
	return &RedisReporter{client: client, channel: channel, ttl: 24 * time.Hour}
}

func (r *RedisReporter) Report(ctx context.Context, ev Event) {
	if err := r.publish(ctx, ev); err != nil {
		log.Printf("[events] ⚠️  redis publish failed: %v", err)
	}
}

func (r *RedisReporter) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, fmt.Sprintf("%s:%s", r.channel, ev.RunID), data).Err(); err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel+":all", data).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, LatestKey(ev.RunID), data, r.ttl).Err()
}

// LatestKey is where the most recent event of a run is stored
func LatestKey(runID string) string {
	return "progress:" + runID
}

// Latest reads the most recent event of a run
func Latest(ctx context.Context, client *redis.Client, runID string) (Event, error) {
	var ev Event
	data, err := client.Get(ctx, LatestKey(runID)).Bytes()
	if err != nil {
		return ev, err
	}
	err = json.Unmarshal(data, &ev)
	return ev, err
}

// Recorder keeps events in memory
type Recorder struct {
	Events []Event
}

func (r *Recorder) Report(ctx context.Context, ev Event) {
	r.Events = append(r.Events, ev)
}

// Stages returns the recorded stage names in order
func (r *Recorder) Stages() []string {
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Stage
	}
	return out
}
