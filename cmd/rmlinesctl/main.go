// rmlinesctl inspects, converts and writes reMarkable v6 scene files and
// queries the catalog kept by rmlinesd.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"rmlines/internal/config"
)

// command is one rmlinesctl subcommand.
type command struct {
	name    string
	args    string
	summary string
	run     func(c *cli, args []string) error
}

var commands = []command{
	{"blocks", "<file>", "List the blocks of a scene file", cmdBlocks},
	{"values", "<file>", "Dump the raw tagged values of every block", cmdValues},
	{"tree", "<file>", "Print the scene tree", cmdTree},
	{"text", "<file>", "Print the page text", cmdText},
	{"roundtrip", "<file>", "Parse and re-encode a file, reporting differences", cmdRoundtrip},
	{"export", "<file>", "Write a JSON, YAML or CBOR snapshot", cmdExport},
	{"simple-text", "<text>", "Write a new page holding the given text", cmdSimpleText},
	{"catalog", "[list|show <file>|history <file>|stats]", "Query the rmlinesd catalog", cmdCatalog},
	{"status", "", "Show daemon and catalog status", cmdStatus},
}

// cli carries the global options and output streams.
type cli struct {
	configPath string
	quiet      bool
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	if err := c.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rmlinesctl: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(args []string) error {
	flagSet := pflag.NewFlagSet("rmlinesctl", pflag.ContinueOnError)
	flagSet.SetOutput(c.stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&c.configPath, "config", "c", "", "path to config file")
	flagSet.BoolVarP(&c.quiet, "quiet", "q", false, "do not print parse diagnostics")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.usage(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		c.usage(flagSet)
		if !help {
			return errors.New("no command given")
		}
		return nil
	}

	name := flagSet.Arg(0)
	if name == "help" {
		c.usage(flagSet)
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(c, flagSet.Args()[1:])
		}
	}
	c.usage(flagSet)
	return fmt.Errorf("unknown command: %s", name)
}

func (c *cli) usage(flagSet *pflag.FlagSet) {
	fmt.Fprintln(c.stderr, `rmlinesctl - reMarkable scene file tool

Usage: rmlinesctl [options] <command> [args]

Commands:`)
	for _, cmd := range commands {
		fmt.Fprintf(c.stderr, "  %-12s %-36s %s\n", cmd.name, cmd.args, cmd.summary)
	}
	fmt.Fprintf(c.stderr, "\nOptions:\n%s", flagSet.FlagUsages())
}

// flags returns a flag set for a subcommand that reports errors on stderr.
func (c *cli) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("rmlinesctl "+name, pflag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// loadConfig loads the configuration named by --config, or the first one
// found in the standard locations.
func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// oneArg parses fs and returns its single positional argument.
func oneArg(fs *pflag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("usage: rmlinesctl %s [flags] <%s>", fs.Name()[len("rmlinesctl "):], what)
	}
	return fs.Arg(0), nil
}
