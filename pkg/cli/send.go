package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/beacon/pkg/httputil"
)

func newSendCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "send",
		Description: "Send a test telemetry event to the API",
		Flags:       newFlagSet("send", out),
		out:         out,
	}

	apiURL := cmd.Flags.String("api-url", defaultAPIURL(), "Beacon API URL")
	sessionID := cmd.Flags.String("session-id", "", "Session id (random when empty)")
	step := cmd.Flags.String("step", "install", "Step tag")
	status := cmd.Flags.String("status", "success", "Status tag")
	username := cmd.Flags.String("username", "", "Username")
	anonymousID := cmd.Flags.String("anonymous-id", "", "Anonymous installer id")
	osName := cmd.Flags.String("os-name", runtime.GOOS, "Operating system name")
	osVersion := cmd.Flags.String("os-version", "", "Operating system version")
	scriptVersion := cmd.Flags.String("script-version", "", "Installer script version")
	timeout := cmd.Flags.Duration("timeout", 10*time.Second, "Request timeout")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *step == "" || *status == "" {
			return fmt.Errorf("step and status are required")
		}

		if *sessionID == "" {
			*sessionID = uuid.New().String()
		}

		payload := map[string]interface{}{
			"sessionId":       *sessionID,
			"step":            *step,
			"status":          *status,
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"osName":          *osName,
			"cpuArchitecture": runtime.GOARCH,
		}
		optional := map[string]string{
			"username":      *username,
			"anonymousId":   *anonymousID,
			"osVersion":     *osVersion,
			"scriptVersion": *scriptVersion,
		}
		for k, v := range optional {
			if v != "" {
				payload[k] = v
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()

		var resp httputil.StatusResponse
		if err := newAPIClient(*apiURL, *timeout).post(ctx, "/api/telemetry", payload, &resp); err != nil {
			return fmt.Errorf("failed to send event: %w", err)
		}

		fmt.Fprintf(out, "Event stored: %s (session %s)\n", resp.ID, *sessionID)
		return nil
	}

	return cmd
}
