package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт команду сводной статистики.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show order and line statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			stats, err := clientFn().GetStats()
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(stats)
				return nil
			}

			o := stats.Orders
			out.Table(
				[]string{"ORDERS", "ACTIVE", "COMPLETED", "CANCELLED", "DONE", "PRODUCTS", "DELIVERED", "FAILED"},
				[][]string{{
					strconv.Itoa(o.TotalOrders),
					strconv.Itoa(o.ActiveOrders),
					strconv.Itoa(o.CompletedOrders),
					strconv.Itoa(o.CancelledOrders),
					percent(o.CompletionRate),
					strconv.Itoa(o.TotalProducts),
					strconv.Itoa(o.DeliveredProducts),
					strconv.Itoa(o.FailedProducts),
				}},
			)

			if len(o.LineProducts) > 0 {
				out.Section("Products per line:")
				lines := make([]string, 0, len(o.LineProducts))
				for line := range o.LineProducts {
					lines = append(lines, line)
				}
				sort.Strings(lines)

				rows := make([][]string, len(lines))
				for i, line := range lines {
					rows[i] = []string{line, strconv.Itoa(o.LineProducts[line])}
				}
				out.Table([]string{"LINE", "PRODUCTS"}, rows)
			}

			out.Section("Lines:")
			out.Table(lineHeaders, lineRows(stats.Lines))
			return nil
		},
	}
}
