package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/otwdelivery/otw-backend/internal/app/api/server"
	"github.com/otwdelivery/otw-backend/internal/app/service/analytics"
	"github.com/otwdelivery/otw-backend/internal/app/service/dispatcher"
	notificationlog "github.com/otwdelivery/otw-backend/internal/app/service/notification_log"
	"github.com/otwdelivery/otw-backend/internal/app/service/reconciler"
	"github.com/otwdelivery/otw-backend/internal/app/service/subscription"
	"github.com/otwdelivery/otw-backend/internal/app/service/webhook"
	"github.com/otwdelivery/otw-backend/internal/platform/db"
	"github.com/otwdelivery/otw-backend/internal/platform/mailer"
	"github.com/otwdelivery/otw-backend/internal/platform/push"
	"github.com/otwdelivery/otw-backend/internal/platform/queue"
	"github.com/otwdelivery/otw-backend/pkg/config"
	"github.com/otwdelivery/otw-backend/pkg/logger"
	"github.com/otwdelivery/otw-backend/pkg/types"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// coreModule is the stack both binaries share.
var coreModule = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	push.Module,
	mailer.Module,
	queue.Module,
	notificationlog.Module,
	reconciler.Module,
	dispatcher.Module,
	analytics.Module,
)

// Module wires the API binary: HTTP surface plus every service the webhook
// and callable routes reach.
var Module = fx.Options(
	coreModule,
	webhook.Module,
	subscription.Module,
	server.Module,
)

// WorkerModule wires the queue-draining binary that executes side-effect
// intents.
var WorkerModule = fx.Options(
	coreModule,
	fx.Invoke(runConsumer),
)

// runConsumer drains the intent queue for the lifetime of the process.
func runConsumer(lc fx.Lifecycle, log *zap.SugaredLogger, consumer *queue.Consumer, d *dispatcher.Service) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Infow("starting intent consumer")
			go func() {
				defer close(done)
				consumer.Run(ctx, func(jobCtx context.Context, intent types.SideEffectIntent) error {
					_, err := d.Dispatch(jobCtx, intent)
					return err
				})
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			log.Infow("stopping intent consumer")
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
