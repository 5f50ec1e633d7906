package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/control"
	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/reconcile"
)

var (
	confirmMerchant string
	confirmOrder    string
	confirmInvoice  string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm [txid]",
	Short: "Reconcile a transaction against its order",
	Long: `Confirm fetches the receipt for txid, decodes the payment event and settles
the matching order. Without --order or --invoice the order is located from the
event itself.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfirm,
}

func init() {
	confirmCmd.Flags().StringVar(&confirmMerchant, "merchant", "", "merchant name or id to scope the lookup")
	confirmCmd.Flags().StringVar(&confirmOrder, "order", "", "order id hint")
	confirmCmd.Flags().StringVar(&confirmInvoice, "invoice", "", "invoice id hint")
	rootCmd.AddCommand(confirmCmd)
}

func runConfirm(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
		req := reconcile.Request{
			TxID:        args[0],
			OrderHint:   confirmOrder,
			InvoiceHint: confirmInvoice,
			Source:      reconcile.SourceCLI,
		}
		if confirmMerchant != "" {
			m, err := app.Orders.ResolveMerchant(ctx, confirmMerchant)
			if err != nil {
				return err
			}
			req.MerchantID = m.MerchantID
		}

		res, err := app.Engine.Confirm(ctx, req)
		if err != nil {
			return reportError(err)
		}
		return printJSON(res)
	})
}

// reportError prints a classified failure with its details before returning it.
func reportError(err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		return err
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", de.Error())
	for k, v := range de.Details {
		_, _ = fmt.Fprintf(os.Stderr, "  %s: %v\n", k, v)
	}
	if de.Kind.Retryable() {
		_, _ = fmt.Fprintln(os.Stderr, "  (retry later)")
	}
	return err
}
