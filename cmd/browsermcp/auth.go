package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/browsermcp/pkg/credentials"
)

// errReported marks failures whose message was already printed.
var errReported = errors.New("reported")

func newLoginCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login <api-key>",
		Short: "Save API key to config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := app.console(cmd)
			apiKey := args[0]

			if !credentials.Validate(apiKey) {
				out.fail("Invalid API key format (should start with '%s')", credentials.KeyPrefix)
				out.hint("   Get your API key from: %s", credentials.KeysURL)
				return errReported
			}

			store, err := app.credentialStore()
			if err != nil {
				return err
			}
			if err := store.Save(apiKey); err != nil {
				return err
			}

			out.success("API key saved successfully!")
			out.blank()
			out.hint("You can now run with tunnel mode:")
			out.code("%s --tunnel", appName)
			return nil
		},
	}
}

func newWhoamiCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show current API key configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := app.console(cmd)

			resolver, err := app.resolver()
			if err != nil {
				return err
			}
			key, source, err := resolver.Resolve("")
			if err != nil && !errors.Is(err, credentials.ErrNoAPIKey) {
				return err
			}

			if key == "" {
				out.fail("Not logged in")
				out.blank()
				out.hint("To login:")
				out.code("%s login <your-api-key>", appName)
				out.blank()
				out.hint("Or set environment variable:")
				out.code("export %s='%syour_key'", credentials.EnvAPIKey, credentials.KeyPrefix)
				out.blank()
				out.hint("Get your API key: %s", credentials.KeysURL)
				return nil
			}

			out.success("Logged in")
			out.hint("   API Key: %s", credentials.Mask(key))
			out.hint("   Source: %s", source)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s v%s\n", appName, version)
		},
	}
}
