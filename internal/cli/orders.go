package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/control"
	"github.com/vietddude/paywatch/internal/core/domain"
)

var listLimit int

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Create and inspect orders",
}

var ordersCreateCmd = &cobra.Command{
	Use:   "create [merchant] [amount]",
	Short: "Create a PENDING order for a merchant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
			o, err := app.Orders.Create(ctx, args[0], args[1])
			if err != nil {
				return reportError(err)
			}
			return printJSON(o)
		})
	},
}

var ordersShowCmd = &cobra.Command{
	Use:   "show [order_id]",
	Short: "Show a single order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
			o, err := app.Orders.Get(ctx, args[0])
			if err != nil {
				return reportError(err)
			}
			return printJSON(o)
		})
	},
}

var ordersListCmd = &cobra.Command{
	Use:   "list [merchant]",
	Short: "List a merchant's most recent orders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
			m, err := app.Orders.ResolveMerchant(ctx, args[0])
			if err != nil {
				return reportError(err)
			}
			list, err := app.Orders.List(ctx, m.MerchantID, listLimit)
			if err != nil {
				return err
			}
			writeOrders(list)
			return nil
		})
	},
}

func init() {
	ordersListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of orders")
	ordersCmd.AddCommand(ordersCreateCmd, ordersShowCmd, ordersListCmd)
	rootCmd.AddCommand(ordersCmd)
}

func writeOrders(list []*domain.Order) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ORDER\tAMOUNT\tSTATUS\tTXID\tUPDATED")
	for _, o := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n",
			o.OrderID, o.Amount, o.Token, o.Status, o.TxID, o.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
