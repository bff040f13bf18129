package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "livewscat [url]",
		Short: "Pipe stdin to a WebSocket and print what comes back",
		Long: `Connect to a WebSocket server, send every line of standard input as a text
message and print every message received, one per line.

The connection is re-established with exponential backoff whenever it drops.
Lines typed while disconnected are queued and sent once the connection is
back. With --signals, SIGUSR1 marks the client as hidden and SIGUSR2 as
visible again.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, args, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	flags.StringSliceP("protocol", "p", nil, "sub-protocol to request (repeatable)")
	flags.StringP("transport", "t", "", "WebSocket implementation: gorilla, gws or nhooyr")
	flags.Int("max-retries", 0, "give up after this many failed attempts (-1 for never)")
	flags.Int("max-queued", 0, "maximum number of lines queued while disconnected (-1 for unbounded)")
	flags.Duration("connection-timeout", 0, "timeout of each connection attempt")
	flags.Duration("heartbeat", 0, "heartbeat interval")
	flags.String("ping", "", "text message sent on every heartbeat; any reply keeps the connection alive")
	flags.Bool("control-ping", false, "send protocol ping frames on every heartbeat")
	flags.Bool("signals", false, "treat SIGUSR1/SIGUSR2 as hidden/visible")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-file", "", "append logs to this file instead of stderr")

	return cmd
}

// applyFlags overrides cfg with the positional URL and the flags that were
// set explicitly.
func applyFlags(cmd *cobra.Command, args []string, cfg *Config) error {
	if len(args) == 1 {
		cfg.URL = args[0]
	}

	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("protocol", func() (e error) { cfg.Protocols, e = flags.GetStringSlice("protocol"); return })
	set("transport", func() (e error) { cfg.Transport, e = flags.GetString("transport"); return })
	set("max-retries", func() (e error) { cfg.Reconnect.MaxRetries, e = flags.GetInt("max-retries"); return })
	set("max-queued", func() (e error) { cfg.Queue.MaxMessages, e = flags.GetInt("max-queued"); return })
	set("connection-timeout", func() (e error) {
		cfg.Reconnect.ConnectionTimeout, e = flags.GetDuration("connection-timeout")
		return
	})
	set("heartbeat", func() (e error) { cfg.Heartbeat.Interval, e = flags.GetDuration("heartbeat"); return })
	set("ping", func() (e error) { cfg.Heartbeat.Message, e = flags.GetString("ping"); return })
	set("control-ping", func() (e error) { cfg.Heartbeat.ControlPing, e = flags.GetBool("control-ping"); return })
	set("signals", func() (e error) { cfg.Lifecycle.Signals, e = flags.GetBool("signals"); return })
	set("metrics-addr", func() (e error) { cfg.Metrics.Addr, e = flags.GetString("metrics-addr"); return })
	set("log-level", func() (e error) { cfg.Log.Level, e = flags.GetString("log-level"); return })
	set("log-file", func() (e error) { cfg.Log.File, e = flags.GetString("log-file"); return })

	return err
}
