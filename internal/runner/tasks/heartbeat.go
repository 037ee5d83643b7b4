package tasks

import (
	"context"
	"fmt"
	"time"
)

type heartbeatStore interface {
	UpsertHeartbeat(ctx context.Context, serviceName string, healthy bool) error
}

// HeartbeatTask refreshes the worker's liveness row so dashboards can tell a
// stalled worker from an idle one.
type HeartbeatTask struct {
	status  heartbeatStore
	service string
}

// NewHeartbeatTask creates the heartbeat task for the named service.
func NewHeartbeatTask(status heartbeatStore, service string) *HeartbeatTask {
	return &HeartbeatTask{status: status, service: service}
}

func (t *HeartbeatTask) Name() string { return "status-heartbeat" }

// Schedule fires every five minutes.
func (t *HeartbeatTask) Schedule() string { return "0 */5 * * * *" }

func (t *HeartbeatTask) Timeout() time.Duration { return 10 * time.Second }

func (t *HeartbeatTask) Run(ctx context.Context) error {
	if err := t.status.UpsertHeartbeat(ctx, t.service, true); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}
