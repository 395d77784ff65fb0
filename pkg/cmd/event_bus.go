package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/approvio/approvio/pkg/channels/gochannel"
	"github.com/approvio/approvio/pkg/channels/kafka"
	"github.com/approvio/approvio/pkg/eventbus"
)

// NewEventBus builds an event bus for the given provider. The gochannel
// provider keeps events in process and serves single-node deployments and
// tests; kafka is the production bus.
func NewEventBus(provider, serviceName, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName, kafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
