package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	cfgpkg "github.com/otwdelivery/otw-backend/pkg/config"
)

// NewMessagingClient initializes the Firebase Admin SDK and returns the Cloud
// Messaging client used for push dispatch and topic management.
func NewMessagingClient(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*messaging.Client, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(context.Background(), nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to init firebase app: %w", err)
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to init messaging client: %w", err)
	}
	l.Infow("firebase messaging client ready")
	return client, nil
}

var Module = fx.Options(
	fx.Provide(NewMessagingClient),
)
