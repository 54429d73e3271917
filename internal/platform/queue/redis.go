package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/otwdelivery/otw-backend/pkg/config"
	"github.com/otwdelivery/otw-backend/pkg/logctx"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

// NewRedisClient builds a redis client from the configured URL and verifies
// connectivity once at startup.
func NewRedisClient(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	l.Infow("redis connection established")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// envelope is the wire format of a queued intent. The trace id of the
// originating request rides along for log correlation in the worker.
type envelope struct {
	TraceID string                 `json:"trace_id,omitempty"`
	Intent  types.SideEffectIntent `json:"intent"`
}

// Publisher pushes side-effect intents onto the dispatch queue. Publishing is
// best-effort from the webhook handler's perspective: the order mutation has
// already committed when intents are queued.
type Publisher struct {
	client *redis.Client
	key    string
	log    *zap.SugaredLogger
}

func NewPublisher(client *redis.Client, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Publisher {
	return &Publisher{client: client, key: cfg.Redis.IntentQueue, log: log}
}

func (p *Publisher) Publish(ctx context.Context, intent types.SideEffectIntent) error {
	traceID, _ := ctx.Value(logctx.KeyTraceID).(string)
	payload, err := json.Marshal(envelope{TraceID: traceID, Intent: intent})
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	if err := p.client.LPush(ctx, p.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue intent: %w", err)
	}
	return nil
}

// Handler executes one dequeued intent.
type Handler func(ctx context.Context, intent types.SideEffectIntent) error

// Consumer drains the dispatch queue. Handler errors are logged and the
// intent is dropped; there is no redelivery beyond what the audit log records.
type Consumer struct {
	client *redis.Client
	key    string
	log    *zap.SugaredLogger
}

func NewConsumer(client *redis.Client, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Consumer {
	return &Consumer{client: client, key: cfg.Redis.IntentQueue, log: log}
}

// Run blocks until ctx is cancelled, popping intents one at a time.
func (c *Consumer) Run(ctx context.Context, handle Handler) {
	for {
		vals, err := c.client.BRPop(ctx, 5*time.Second, c.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Errorw("queue_pop_failed", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		if len(vals) != 2 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(vals[1]), &env); err != nil {
			c.log.Errorw("queue_decode_failed", "error", err.Error())
			continue
		}

		jobCtx := logctx.WithTraceID(ctx, env.TraceID)
		if err := handle(jobCtx, env.Intent); err != nil {
			logctx.FromCtx(jobCtx, c.log).Errorw("intent_handle_failed",
				"kind", env.Intent.Kind, "order_id", env.Intent.OrderID, "error", err.Error())
		}
	}
}

var Module = fx.Options(
	fx.Provide(NewRedisClient),
	fx.Provide(NewPublisher),
	fx.Provide(NewConsumer),
)
