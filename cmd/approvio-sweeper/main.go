package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/approvio/approvio/pkg/cmd"
	"github.com/approvio/approvio/pkg/log"
	"github.com/approvio/approvio/pkg/notification"
	"github.com/approvio/approvio/pkg/services"
	"github.com/approvio/approvio/pkg/subject"
	trc "github.com/approvio/approvio/pkg/tracer"
	"github.com/approvio/approvio/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "approvio-sweeper",
		Usage:                 "Run the background auto-approval and timeout sweeps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sweeper-id",
				Aliases: []string{"id"},
				Usage:   "Custom sweeper ID (auto-generated if not provided)",
				Sources: cli.EnvVars("SWEEPER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list (kafka event bus only)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for sweep scheduling",
				Value:   "* * * * *",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := trc.Init(ctx, "approvio-sweeper")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			sweeperID := command.String("sweeper-id")
			if sweeperID == "" {
				sweeperID = fmt.Sprintf("sweeper-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("approvio-sweeper").With("sweeper_id", sweeperID)

			logger.InfoContext(ctx, "Initializing Approvio sweeper")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(
				command.String("event-bus"), "approvio-sweeper", command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			templateService := services.NewTemplate(persistence, nil)
			notifier := notification.NewEventBusNotifier(eventBus)
			publisher := workflow.NewEventPublisher(eventBus, logger)
			engine := workflow.NewEngine(persistence, templateService, notifier, publisher, logger)

			// Subject attributes are a consumer boundary; the static reader
			// serves single-node deployments where attributes are seeded via
			// subject events.
			subjects := subject.NewStaticReader()

			sweeper := NewSweeper(
				sweeperID,
				command.String("schedule"),
				workflow.NewAutoApprover(persistence, engine, subjects, logger),
				workflow.NewTimeoutSweeper(persistence, engine, logger),
				logger,
			)

			return sweeper.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
