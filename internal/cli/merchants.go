package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/control"
)

var merchantsCmd = &cobra.Command{
	Use:   "merchants",
	Short: "Manage merchants",
}

var merchantsAddCmd = &cobra.Command{
	Use:   "add [name] [address]",
	Short: "Register a merchant and its settlement address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
			m, err := app.Orders.AddMerchant(ctx, args[0], args[1])
			if err != nil {
				return reportError(err)
			}
			return printJSON(m)
		})
	},
}

var merchantsConfirmCmd = &cobra.Command{
	Use:   "confirm [merchant] [txid]",
	Short: "Record a merchant's activation from its registry onboarding transaction",
	Long: `Confirm reads the onboarding receipt from the merchant registry contract.
The merchant becomes active only when the transaction succeeded and the event
marks it active. A receipt without a registry event changes nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
			res, err := app.Orders.ConfirmMerchant(ctx, args[0], args[1])
			if err != nil {
				return reportError(err)
			}
			return printJSON(res)
		})
	},
}

func init() {
	merchantsCmd.AddCommand(merchantsAddCmd)
	merchantsCmd.AddCommand(merchantsConfirmCmd)
	rootCmd.AddCommand(merchantsCmd)
}
