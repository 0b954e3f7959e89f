package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNoResponse is returned when a pull is not answered in time
var ErrNoResponse = errors.New("no response from daemon")

// Client is the management-side view of the data store: it edits running
// configuration, issues operational pulls and watches notifications.
type Client struct {
	client *redis.Client
}

// NewClient creates a client against the Redis server at addr
func NewClient(addr string, db int) *Client {
	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// Connect tests the connection
func (c *Client) Connect(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Edit applies changes to the running configuration of module and publishes
// them as one change batch.
func (c *Client) Edit(ctx context.Context, module string, changes []Change) error {
	payload, err := json.Marshal(ChangeBatch{Event: EventChange, Changes: changes})
	if err != nil {
		return fmt.Errorf("encoding changes: %w", err)
	}

	running := Key(RunningTable, module)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ch := range changes {
			switch ch.Operation {
			case OpDeleted:
				pipe.HDel(ctx, running, ch.Path)
			default:
				v := ""
				if ch.Value != nil {
					v = *ch.Value
				}
				pipe.HSet(ctx, running, ch.Path, v)
			}
		}
		pipe.Publish(ctx, Key(ChangeTable, module), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("editing %s: %w", module, err)
	}
	return nil
}

// Running returns the running configuration of module, path to value.
func (c *Client) Running(ctx context.Context, module string) (map[string]string, error) {
	return c.client.HGetAll(ctx, Key(RunningTable, module)).Result()
}

// RequestOperData queues a pull for path and waits up to timeout for the
// serving daemon to answer. The returned JSON is the RFC 7951 tree.
func (c *Client) RequestOperData(ctx context.Context, module, path string, timeout time.Duration) (json.RawMessage, error) {
	req := OperRequest{ID: uuid.NewString(), Path: path}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := c.client.RPush(ctx, Key(OperReqTable, module), payload).Err(); err != nil {
		return nil, fmt.Errorf("queueing pull: %w", err)
	}

	res, err := c.client.BLPop(ctx, timeout, Key(OperRespTable, req.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pull %s for %s: %w", req.ID, module, ErrNoResponse)
	}
	if err != nil {
		return nil, fmt.Errorf("waiting for pull response: %w", err)
	}

	var resp OperResponse
	if err := json.Unmarshal([]byte(res[1]), &resp); err != nil {
		return nil, fmt.Errorf("decoding pull response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("pull %s: %s", path, resp.Error)
	}
	return resp.Data, nil
}

// WatchNotifications calls fn for each notification published for module
// until ctx is done or fn returns an error.
func (c *Client) WatchNotifications(ctx context.Context, module string, fn func(Notification) error) error {
	ps := c.client.Subscribe(ctx, Key(NotifyTable, module))
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to notifications: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				return fmt.Errorf("decoding notification: %w", err)
			}
			if err := fn(n); err != nil {
				return err
			}
		}
	}
}
