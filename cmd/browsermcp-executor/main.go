// Package main provides the reference browser executor: it launches
// Chromium with Playwright and connects to a running browsermcp server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/entrhq/browsermcp/pkg/config"
	"github.com/entrhq/browsermcp/pkg/executor"
	"github.com/entrhq/browsermcp/pkg/logging"
)

var version = "0.1.0"

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A8E6CF")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB3BA")).Bold(true)
)

type options struct {
	host       string
	port       int
	headless   bool
	install    bool
	maxRetries int
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "browsermcp-executor",
		Short:         "Drive a Playwright browser on behalf of a browsermcp server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.host, "host", config.DefaultHost, "browsermcp server host")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultPort, "browsermcp server port")
	flags.BoolVar(&opts.headless, "headless", false, "Run Chromium without a window")
	flags.BoolVar(&opts.install, "install", true, "Install the Playwright driver and Chromium if missing")
	flags.IntVar(&opts.maxRetries, "max-retries", 0, "Give up after this many consecutive failed connects (0 retries forever)")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts *options) error {
	logger, err := logging.NewLogger("executor")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: file logging unavailable: %v\n", err)
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser, err := executor.Launch(executor.BrowserOptions{
		Headless: opts.headless,
		Install:  opts.install,
		Logger:   logger.With("browser"),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warnf("browser close: %v", err)
		}
	}()

	url := fmt.Sprintf("ws://%s:%d/", opts.host, opts.port)
	client := executor.NewClient(executor.NewDispatcher(browser), executor.ClientOptions{
		URL:        url,
		MaxRetries: opts.maxRetries,
		Logger:     logger.With("client"),
	})

	fmt.Fprintln(cmd.ErrOrStderr(), okStyle.Render("Browser ready, connecting to "+url))
	err = client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
}
