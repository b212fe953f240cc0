package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/pflag"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *pflag.FlagSet

	out io.Writer
}

// NewRootCommand creates the root command. Output goes to out, or stdout
// when out is nil.
func NewRootCommand(out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}

	root := &Command{
		Name:        "beacon-cli",
		Description: "Beacon - installer telemetry admin CLI",
		Subcommands: make(map[string]*Command),
		Flags:       pflag.NewFlagSet("beacon-cli", pflag.ContinueOnError),
		out:         out,
	}

	root.add(newSendCommand(out))
	root.add(newStatsCommand(out))
	root.add(newClearCommand(out))
	root.add(newWebhookTestCommand(out))

	return root
}

func (c *Command) add(sub *Command) {
	c.Subcommands[sub.Name] = sub
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage()
	}

	subcmd, ok := c.Subcommands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}

	err := subcmd.Run(args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(c.out, "Usage: %s <command> [flags]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// newFlagSet returns a flag set whose help output goes to out
func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// defaultAPIURL honours BEACON_API_URL
func defaultAPIURL() string {
	if v := os.Getenv("BEACON_API_URL"); v != "" {
		return v
	}
	return "http://localhost:9999"
}
