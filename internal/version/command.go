package version

import (
	"fmt"
	"io"
	"sort"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/oshokin/flatpak-updater/internal/config"
)

// AttachCobraVersionCommand attaches a `version` subcommand to the provided root command.
// It prints detailed build info and, on request, which release variables are set.
func AttachCobraVersionCommand(root *cobra.Command) {
	var releaseEnv bool

	command := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print detailed version information including build metadata, commit hash, and build timestamp. This information is automatically injected during the build process from Git tags and repository state.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())

			if !releaseEnv {
				return nil
			}

			release, err := config.LoadRelease(cmd.Context(), envconfig.OsLookuper())
			if err != nil {
				return err
			}

			return WriteReleasePresence(cmd.OutOrStdout(), release)
		},
	}

	command.Flags().BoolVar(&releaseEnv, "release-env", false, "show which release variables are set")

	// Subcommand: `version`.
	root.AddCommand(command)
}

// WriteReleasePresence prints "set" or "unset" for every release variable.
func WriteReleasePresence(out io.Writer, release *config.Release) error {
	presence := release.Presence()

	names := make([]string, 0, len(presence))
	for name := range presence {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		state := "unset"
		if presence[name] {
			state = "set"
		}

		if _, err := fmt.Fprintf(out, "%s: %s\n", name, state); err != nil {
			return err
		}
	}

	return nil
}
