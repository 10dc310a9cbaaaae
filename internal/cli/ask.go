package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

func newAskCmd(v *viper.Viper) *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask for a single consultation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClientFromConfig(v)
			resp, err := client.Consult(cmd.Context(), domain.ConsultBody{
				Message: strings.Join(args, " "),
				UserID:  userID,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return renderJSON(cmd.OutOrStdout(), resp)
			}
			return renderResponse(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "consult on behalf of this user (admin only)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	return cmd
}
