package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatrelay/internal/app"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Minimal real-time chat relay and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to config file (default ./config.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newServeCmd(), newChatCmd(), newSendCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel)

			logger.Info().
				Str("addr", cfg.Addr).
				Bool("echo_to_sender", cfg.EchoToSender).
				Msg("starting chatrelay server")
			if err := app.NewRelay(&cfg, logger).Run(cmd.Context()); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().Bool("echo-to-sender", true, "deliver messages back to their sender")
	cmd.Flags().Float64("rate-limit", 0, "messages per second allowed per connection")
	cmd.Flags().Int("rate-burst", 0, "burst size for the per-connection rate limit")
	return cmd
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the relay from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// logs go to stderr so the message list on stdout stays clean
			logger := log.NewWithWriter(cfg.LogLevel, os.Stderr)

			return app.NewChat(&cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
		},
	}

	cmd.Flags().String("server-url", "", "relay websocket URL")
	cmd.Flags().String("send-policy", "", "what to do with messages sent while disconnected: drop or queue")
	cmd.Flags().Int("history-limit", 0, "cap on displayed messages, 0 for unbounded")
	cmd.Flags().Bool("no-color", false, "disable coloured output")
	return cmd
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send one message and print the first message relayed back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			logger := log.NewWithWriter(cfg.LogLevel, os.Stderr)

			got, err := app.Smoke(cmd.Context(), &cfg, logger, args[0], timeout)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), got)
			return err
		},
	}

	cmd.Flags().String("server-url", "", "relay websocket URL")
	cmd.Flags().Duration("timeout", 5*time.Second, "total timeout for the round trip")
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return config.Config{}, err
	}

	cfg, _, err := config.Load(log.NewWithWriter(orDefault(level, "warn"), os.Stderr), path, cmd.Flags())
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
