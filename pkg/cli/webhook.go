package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/webhooks"
)

func newWebhookTestCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "webhook-test",
		Description: "Send a ping event to every configured webhook",
		Flags:       newFlagSet("webhook-test", out),
		out:         out,
	}

	configFile := cmd.Flags.String("config", os.Getenv(config.ConfigFileEnv), "YAML config file")
	timeout := cmd.Flags.Duration("timeout", time.Minute, "Overall timeout including retries")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		cfg, err := config.Load(*configFile)
		if err != nil {
			return err
		}

		logger := observability.NewLogger(observability.ErrorLevel, os.Stderr)
		notifier, err := webhooks.NewNotifier(cfg.Monitor.Webhooks, nil, logger)
		if err != nil {
			return err
		}
		if len(notifier.Endpoints()) == 0 {
			return fmt.Errorf("no webhook endpoints configured")
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		pingErr := notifier.Ping(ctx)

		for _, ep := range notifier.Endpoints() {
			for _, log := range notifier.Deliveries().List(ep.Name, 1) {
				fmt.Fprintf(out, "%-20s %-8s attempts=%d status=%d %s\n",
					ep.Name, log.Status, log.Attempts, log.StatusCode, log.ErrorMessage)
			}
		}
		return pingErr
	}

	return cmd
}
