// Package cli implements the consultctl command line client.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CONSULT"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "consultctl",
		Short:         "consultctl: talk to the pharmacy consultation service",
		Long:          "consultctl sends symptom descriptions to the consultation service, runs interactive chat sessions over WebSocket and manages stored conversation context.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "consultation service base URL")
	flags.String("token", "", "bearer token (anonymous when empty)")
	flags.String("config", "", "config file (default $HOME/.consultctl.yaml)")
	flags.Duration("timeout", 0, "request timeout (default 30s)")
	_ = v.BindPFlag("server", flags.Lookup("server"))
	_ = v.BindPFlag("token", flags.Lookup("token"))
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))

	rootCmd.AddCommand(
		newAskCmd(v),
		newChatCmd(v),
		newContextCmd(v),
	)

	return rootCmd
}

// loadConfig wires CONSULT_* environment variables and the optional config
// file into v. Flags set on the command line take precedence.
func loadConfig(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("timeout", "30s")

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}

	v.SetConfigName(".consultctl")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func newClientFromConfig(v *viper.Viper) *Client {
	return NewClient(v.GetString("server"), v.GetString("token"), v.GetDuration("timeout"))
}
