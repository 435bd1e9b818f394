package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskAssetDelete   = "asset.delete"
	TaskSessionsPurge = "sessions.purge"
)

var ErrMalformedTask = errors.New("malformed task")

// Task is one unit of background work carried on the redis stream.
type Task struct {
	Type     string
	PublicID string
}

func (t Task) values() map[string]any {
	values := map[string]any{"type": t.Type}
	if t.PublicID != "" {
		values["publicId"] = t.PublicID
	}
	return values
}

func decodeTask(values map[string]any) (Task, error) {
	kind, _ := values["type"].(string)
	if kind == "" {
		return Task{}, ErrMalformedTask
	}
	publicID, _ := values["publicId"].(string)
	return Task{Type: kind, PublicID: publicID}, nil
}

type Queue struct {
	client *redis.Client
	stream string
}

func NewQueue(client *redis.Client, stream string) *Queue {
	return &Queue{client: client, stream: stream}
}

func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	if task.Type == "" {
		return ErrMalformedTask
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: task.values(),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return nil
}

// DeleteAsset schedules removal of an uploaded avatar object.
func (q *Queue) DeleteAsset(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	return q.Enqueue(ctx, Task{Type: TaskAssetDelete, PublicID: publicID})
}
