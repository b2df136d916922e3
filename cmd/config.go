package cmd

import (
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/browserpool/internal/config"
	"github.com/spf13/cobra"
)

// CreateConfigCmd creates the config command, which prints the effective
// configuration after file, env and flag overrides. The auth password is
// masked.
func CreateConfigCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Renders the merged configuration (config file, BROWSERPOOL_* env vars and flags) in config file layout.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			if _, err := config.FromOptions(opts); err != nil {
				fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
				os.Exit(1)
			}
			if check {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
				return
			}

			shown := *opts
			if shown.AuthPassword != "" {
				shown.AuthPassword = "********"
			}
			data, err := config.MarshalTOML(&shown)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
				os.Exit(1)
			}
			_, _ = cmd.OutOrStdout().Write(data)
		}),
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only validate the configuration")
	return cmd
}
