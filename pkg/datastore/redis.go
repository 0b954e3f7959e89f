package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/newtron-network/ifbridge/pkg/util"
)

// DefaultDB is the Redis database holding the management tables
const DefaultDB = 4

// Redis key layout. Hashes and lists use the "TABLE|name" convention.
const (
	RunningTable  = "RUNNING"
	ChangeTable   = "CHANGE"
	OperReqTable  = "OPER_REQ"
	OperRespTable = "OPER_RESP"
	NotifyTable   = "NOTIFY"

	operRespTTL = 30 * time.Second
	pollTimeout = time.Second
)

// Key joins a table and a name into a Redis key
func Key(table, name string) string {
	return fmt.Sprintf("%s|%s", table, name)
}

// OperRequest is an operational pull queued on OPER_REQ|<module>
type OperRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// OperResponse answers one OperRequest on OPER_RESP|<id>
type OperResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Notification is published on NOTIFY|<module>
type Notification struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Session is the daemon's connection to the management data store. Command
// calls are serialized on one mutex; subscription loops receive on their own
// connections and take the mutex only to issue commands.
type Session struct {
	client *redis.Client

	mu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session against the Redis server at addr
func NewSession(addr string, db int) *Session {
	return &Session{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		done: make(chan struct{}),
	}
}

// Connect tests the connection
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to data store: %w", err)
	}
	return nil
}

// Close stops all subscription loops and closes the connection
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.client.Close()
}

// loopContext returns a context cancelled by ctx or by Close.
func (s *Session) loopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Running returns the running configuration of module, path to value.
func (s *Session) Running(ctx context.Context, module string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals, err := s.client.HGetAll(ctx, Key(RunningTable, module)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading running config of %s: %w", module, err)
	}
	return vals, nil
}

// SubscribeModuleChange delivers change batches published for module to h,
// in publication order. With enabled set, the current running configuration
// is first delivered as one EventEnabled batch of created leaves.
func (s *Session) SubscribeModuleChange(ctx context.Context, module string, h ChangeHandler, enabled bool) error {
	channel := Key(ChangeTable, module)
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	logger := util.WithModule(module)

	if enabled {
		running, err := s.Running(ctx, module)
		if err != nil {
			ps.Close()
			return err
		}
		changes := runningChanges(running)
		if len(changes) > 0 {
			if err := h.OnChange(ctx, EventEnabled, changes); err != nil {
				logger.Warnf("Enabled delivery: %v", err)
			}
		}
	}

	loopCtx, cancel := s.loopContext(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					logger.Warn("Change subscription closed")
					return
				}
				var batch ChangeBatch
				if err := json.Unmarshal([]byte(msg.Payload), &batch); err != nil {
					logger.Warnf("Discarding malformed change batch: %v", err)
					continue
				}
				util.Logger.Debugf("%s delivery on %s: %d change(s)", batch.Event, module, len(batch.Changes))
				if err := h.OnChange(loopCtx, batch.Event, batch.Changes); err != nil {
					logger.Warnf("%s delivery: %v", batch.Event, err)
				}
			}
		}
	}()

	logger.Infof("Subscribed to changes on %s", channel)
	return nil
}

func runningChanges(running map[string]string) []Change {
	paths := make([]string, 0, len(running))
	for p := range running {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	changes := make([]Change, 0, len(paths))
	for _, p := range paths {
		v := running[p]
		changes = append(changes, Change{Operation: OpCreated, Path: p, Value: &v})
	}
	return changes
}

// SubscribeOperData serves operational pulls queued for module with h, one
// at a time in arrival order. A handler error is returned to the requester
// in place of data.
func (s *Session) SubscribeOperData(ctx context.Context, module, path string, h OperHandler) error {
	queue := Key(OperReqTable, module)
	conn := s.client.Conn(ctx)
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return fmt.Errorf("opening pull connection for %s: %w", queue, err)
	}

	logger := util.WithModule(module)

	loopCtx, cancel := s.loopContext(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer conn.Close()

		for {
			if loopCtx.Err() != nil {
				return
			}
			res, err := conn.BLPop(loopCtx, pollTimeout, queue).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if loopCtx.Err() != nil {
					return
				}
				logger.Errorf("Waiting for pull requests: %v", err)
				select {
				case <-loopCtx.Done():
					return
				case <-time.After(pollTimeout):
				}
				continue
			}

			var req OperRequest
			if err := json.Unmarshal([]byte(res[1]), &req); err != nil || req.ID == "" {
				logger.Warnf("Discarding malformed pull request %q", res[1])
				continue
			}
			s.answer(loopCtx, module, req, h)
		}
	}()

	logger.Infof("Serving operational data for %s on %s", path, queue)
	return nil
}

func (s *Session) answer(ctx context.Context, module string, req OperRequest, h OperHandler) {
	logger := util.WithModule(module)

	var resp OperResponse
	tree, err := h.OnOperData(ctx, req.Path)
	if err != nil {
		resp.Error = err.Error()
	} else if tree != nil {
		data, err := json.Marshal(tree)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Data = data
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Errorf("Encoding pull response %s: %v", req.ID, err)
		return
	}

	key := Key(OperRespTable, req.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.Expire(ctx, key, operRespTTL)
		return nil
	})
	if err != nil {
		logger.Errorf("Writing pull response %s: %v", req.ID, err)
	}
}

// SendNotification publishes tree as the notification at eventPath.
func (s *Session) SendNotification(ctx context.Context, tree *Tree, module, eventPath string) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	payload, err := json.Marshal(Notification{Path: eventPath, Data: data})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Publish(ctx, Key(NotifyTable, module), payload).Err(); err != nil {
		return fmt.Errorf("publishing notification %s: %w", eventPath, err)
	}
	return nil
}
