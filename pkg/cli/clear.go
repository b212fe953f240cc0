package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/platinummonkey/beacon/pkg/app"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
)

func newClearCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "clear",
		Description: "Delete every stored telemetry event",
		Flags:       newFlagSet("clear", out),
		out:         out,
	}

	configFile := cmd.Flags.String("config", os.Getenv(config.ConfigFileEnv), "YAML config file")
	yes := cmd.Flags.Bool("yes", false, "Confirm deletion")
	timeout := cmd.Flags.Duration("timeout", time.Minute, "Operation timeout")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if !*yes {
			return fmt.Errorf("refusing to delete all events without --yes")
		}

		cfg, err := config.Load(*configFile)
		if err != nil {
			return err
		}

		logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
		store, _, err := app.OpenStore(cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		deleted, err := store.DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear events: %w", err)
		}

		fmt.Fprintf(out, "Deleted %d events from %s store\n", deleted, cfg.Storage.Type)
		return nil
	}

	return cmd
}
