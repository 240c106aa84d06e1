package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"remindbot/config"
	"remindbot/control"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "remindbot",
		Short:         "Scheduled reminder engine for Discord guilds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $REMINDBOT_CONFIG)")

	loadConfig := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the scheduler and the command API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg)
			},
		},
		newSuperviseCommand(loadConfig, &configPath),
		newControlCommand(loadConfig),
		newHashSecretCommand(),
	)
	return root
}

func newSuperviseCommand(loadConfig func() (*config.Config, error), configPath *string) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run serve as a child process and honour restart/stop requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return supervise(cmd.Context(), cfg, *configPath, interactive)
		},
	}
	cmd.Flags().BoolVar(&interactive, "interactive", true, "read r (restart) and q (quit) from stdin")
	return cmd
}

func newControlCommand(loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Set a launcher control flag",
	}
	setFlag := func(name string, restart bool) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: "Ask the supervisor to " + name + " the engine after it exits",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				file := control.NewFile(cfg.Control)
				if restart {
					err = file.SetRestart(true)
				} else {
					err = file.SetStop(true)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s flag set in %s\n", name, file.Path())
				return nil
			},
		}
	}
	cmd.AddCommand(setFlag("restart", true), setFlag("stop", false))
	return cmd
}

func newHashSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Print the bcrypt hash of the bridge secret for auth.bridge_secret_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret from stdin: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if len(secret) < 16 {
				return fmt.Errorf("secret must be at least 16 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}
