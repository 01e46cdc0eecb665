package cli

import (
	"github.com/spf13/cobra"

	"github.com/melih/aetherhost/internal/adapters/apiclient"
	"github.com/melih/aetherhost/internal/config"
)

type rootFlags struct {
	profilePath string
	apiURL      string
}

// NewRootCmd builds the aether command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "aether",
		Short:         "Command line client for AetherHost",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.profilePath, "profile", "", "profile file (default ~/.aether/profile.yaml)")
	cmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "API base URL (overrides the profile)")

	cmd.AddCommand(newLoginCmd(flags), newListCmd(flags), newShellCmd(flags))
	return cmd
}

func (f *rootFlags) path() (string, error) {
	if f.profilePath != "" {
		return f.profilePath, nil
	}
	return config.DefaultProfilePath()
}

// load returns the profile with the --api-url override applied.
func (f *rootFlags) load() (config.Profile, string, error) {
	path, err := f.path()
	if err != nil {
		return config.Profile{}, "", err
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return config.Profile{}, "", err
	}
	if f.apiURL != "" {
		p.APIURL = f.apiURL
	}
	return p, path, nil
}

func (f *rootFlags) client(p config.Profile) *apiclient.Client {
	return apiclient.New(p.APIURL)
}
