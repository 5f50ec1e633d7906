package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/paywatch/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status [merchant]",
	Short: "Show a merchant's order KPIs and node provider health",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, app *control.App) error {
		d, err := app.Orders.Dashboard(ctx, args[0])
		if err != nil {
			return reportError(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
		_, _ = fmt.Fprintln(w, "MERCHANT\tTOTAL\tSUCCESS\tPENDING\tFAILED\tSALES")
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s %s\n",
			d.Merchant.Name, d.KPI.Total, d.KPI.Success, d.KPI.Pending, d.KPI.Failed, d.KPI.Sales, d.KPI.Currency)
		_ = w.Flush()

		if len(d.RecentOrders) > 0 {
			fmt.Println()
			writeOrders(d.RecentOrders)
		}

		if dash := app.ProviderDashboard(); dash != "" {
			fmt.Println()
			fmt.Print(dash)
		}
		return nil
	})
}
