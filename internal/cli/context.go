package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newContextCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or clear stored conversation context",
	}

	var userID string
	var asJSON bool

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored conversation context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := newClientFromConfig(v).GetContext(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if asJSON {
				return renderJSON(cmd.OutOrStdout(), view)
			}
			return renderContext(cmd.OutOrStdout(), view)
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the stored conversation context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newClientFromConfig(v).ClearContext(cmd.Context(), userID); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "context cleared")
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&userID, "user-id", "", "target user (admin only; default is yourself)")
	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}
