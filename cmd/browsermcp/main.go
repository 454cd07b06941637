// Package main provides the browsermcp server: an MCP tool server on stdio
// that forwards browser tool calls to a remote executor over WebSocket.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/entrhq/browsermcp/pkg/config"
	"github.com/entrhq/browsermcp/pkg/credentials"
	"github.com/entrhq/browsermcp/pkg/logging"
	"github.com/entrhq/browsermcp/pkg/server"
)

const (
	appName        = "lum-browsermcp"
	appDescription = "MCP server for browser automation with lrok tunnel support - powered by lum.tools"

	// exitTimeout is how long the process may linger after stdin closes.
	exitTimeout = 15 * time.Second
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// app carries flag values and the process boundary so commands can be
// exercised in tests.
type app struct {
	stdio  mcp.Transport
	getenv func(string) string
	exit   func(int)

	apiKey          string
	tunnel          bool
	subdomain       string
	port            int
	configPath      string
	credentialsPath string
}

func newApp() *app {
	return &app{
		stdio:  &mcp.StdioTransport{},
		getenv: os.Getenv,
		exit:   os.Exit,
	}
}

func (a *app) console(cmd *cobra.Command) console {
	return console{w: cmd.ErrOrStderr()}
}

func (a *app) credentialStore() (*credentials.Store, error) {
	return credentials.NewStore(a.credentialsPath)
}

func (a *app) resolver() (*credentials.Resolver, error) {
	store, err := a.credentialStore()
	if err != nil {
		return nil, err
	}
	return &credentials.Resolver{Store: store, Getenv: a.getenv}, nil
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         appDescription,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
	root.SetVersionTemplate("Version {{.Version}}\n")

	flags := root.Flags()
	flags.StringVarP(&a.apiKey, "api-key", "k", "", "lum.tools platform API key (or set LUM_API_KEY env var)")
	flags.BoolVarP(&a.tunnel, "tunnel", "t", false, "Expose MCP server via lrok tunnel (requires API key)")
	flags.StringVarP(&a.subdomain, "subdomain", "s", "", "Custom subdomain for tunnel (optional)")
	flags.IntVarP(&a.port, "port", "p", config.DefaultPort, "WebSocket port the browser executor connects to")
	flags.StringVar(&a.configPath, "config", "", "Path to the configuration file (default ~/.browsermcp/config.yaml)")

	root.PersistentFlags().StringVar(&a.credentialsPath, "credentials", "", "Path to the API key file (default ~/.lrok/config.toml)")
	_ = root.PersistentFlags().MarkHidden("credentials")

	root.AddCommand(newLoginCommand(a), newWhoamiCommand(a), newVersionCommand())
	return root
}

func (a *app) serve(cmd *cobra.Command) error {
	out := a.console(cmd)

	if a.tunnel {
		if err := a.prepareTunnel(out); err != nil {
			return err
		}
	}

	if err := config.Initialize(a.configPath); err != nil {
		out.warn("Warning: using default configuration: %v", err)
	}

	logger, err := logging.NewLogger("browsermcp")
	if err != nil {
		out.warn("Warning: file logging unavailable, logging to stderr: %v", err)
	}
	defer logging.Close()

	cfg := server.ConfigFromGlobal()
	cfg.Name = appName
	cfg.Version = version
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = a.port
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdinClosed := make(chan struct{})
	cancelWatchdog := startExitWatchdog(stdinClosed, exitTimeout, a.exit)
	defer cancelWatchdog()

	transport := newEOFWatchTransport(a.stdio, stdinClosed)

	logger.Infof("%s %s starting, executor port %d, log %s", appName, version, cfg.Server.Port, logger.LogPath())
	return srv.Run(ctx, transport)
}

// prepareTunnel resolves and saves the API key for tunnel mode.
func (a *app) prepareTunnel(out console) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	apiKey, _, err := resolver.Resolve(a.apiKey)
	if errors.Is(err, credentials.ErrNoAPIKey) {
		printMissingKey(out)
		return errReported
	}
	if err != nil {
		return err
	}

	if !credentials.Validate(apiKey) {
		out.warn("Warning: API key should start with '%s'", credentials.KeyPrefix)
		out.hint("   Get a valid key from: %s", credentials.KeysURL)
	}

	if err := resolver.Store.Save(apiKey); err != nil {
		out.warn("Warning: could not save API key: %v", err)
	}

	out.header("Tunnel mode enabled")
	out.hint("   API Key: %s", credentials.Mask(apiKey))
	if a.subdomain != "" {
		out.hint("   Subdomain: %s", a.subdomain)
	}
	out.blank()
	out.warn("lrok tunnel integration coming soon!")
	out.hint("   For now, use lrok CLI separately:")
	out.code("lrok <port> --name mcp-server")
	out.blank()
	return nil
}

func printMissingKey(out console) {
	out.fail("No API key configured!")
	out.blank()
	out.hint("You need a lum.tools platform API key to use tunnel mode.")
	out.blank()
	out.header("Get your API key:")
	out.hint("   1. Visit: %s", credentials.KeysURL)
	out.hint("   2. Login with your account")
	out.hint("   3. Create a new API key")
	out.hint("   4. Copy your API key (starts with '%s')", credentials.KeyPrefix)
	out.blank()
	out.header("Usage:")
	out.code("%s --api-key %syour_api_key_here --tunnel", appName, credentials.KeyPrefix)
	out.blank()
	out.hint("Or use environment variable:")
	out.code("export %s='%syour_api_key_here'", credentials.EnvAPIKey, credentials.KeyPrefix)
	out.code("%s --tunnel", appName)
}

func main() {
	if err := newRootCommand(newApp()).Execute(); err != nil {
		if !errors.Is(err, errReported) {
			console{w: os.Stderr}.fail("Error: %v", err)
		}
		os.Exit(1)
	}
}
