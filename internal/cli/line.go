package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// NewLineCmd создаёт группу команд для просмотра линий.
func NewLineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "lines",
		Aliases: []string{"line"},
		Short:   "Inspect production lines",
	}

	cmd.AddCommand(
		newLineListCmd(clientFn, outputFn),
		newLineSnapshotCmd(clientFn, outputFn),
		newLineHistoryCmd(clientFn, outputFn),
	)

	return cmd
}

var lineHeaders = []string{"LINE", "VEHICLES", "QUEUED", "HISTORY", "STOPPED"}

func lineRows(lines []LineSummary) [][]string {
	rows := make([][]string, len(lines))
	for i, l := range lines {
		rows[i] = []string{
			l.LineID,
			joinIDs(l.Vehicles),
			strconv.Itoa(l.QueuedEvents),
			strconv.Itoa(l.History),
			strconv.FormatBool(l.Stopped),
		}
	}
	return rows
}

func newLineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := clientFn().ListLines()
			if err != nil {
				return err
			}
			outputFn().Print(lineHeaders, lineRows(lines), lines)
			return nil
		},
	}
}

func newLineSnapshotCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot LINE",
		Short: "Show the latest telemetry of a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			snap, err := clientFn().GetSnapshot(args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(snap)
				return nil
			}

			fmt.Fprintf(out.w, "Line %s, updated %s\n", snap.LineID, snap.UpdatedAt)

			out.Section("Stations:")
			out.Table([]string{"ID", "STATUS", "BUFFER", "OUTPUT", "MESSAGE"},
				deviceRows(snap.Stations, func(d DeviceResponse) []string {
					return []string{d.ID, d.Status, joinIDs(d.Buffer), joinIDs(d.OutputBuffer), d.Message}
				}))

			out.Section("AGVs:")
			out.Table([]string{"ID", "STATUS", "POINT", "TARGET", "BATTERY", "PAYLOAD"},
				deviceRows(snap.AGVs, func(d DeviceResponse) []string {
					target := d.TargetPoint
					if target == "" {
						target = "-"
					}
					return []string{d.ID, d.Status, d.CurrentPoint, target, fmt.Sprintf("%.0f", d.BatteryLevel), joinIDs(d.Payload)}
				}))

			out.Section("Conveyors:")
			out.Table([]string{"ID", "STATUS", "BUFFER", "UPPER", "LOWER"},
				deviceRows(snap.Conveyors, func(d DeviceResponse) []string {
					return []string{d.ID, d.Status, joinIDs(d.Buffer), joinIDs(d.UpperBuffer), joinIDs(d.LowerBuffer)}
				}))

			out.Section("Warehouses:")
			out.Table([]string{"ID", "BUFFER"},
				deviceRows(snap.Warehouses, func(d DeviceResponse) []string {
					return []string{d.ID, joinIDs(d.Buffer)}
				}))
			return nil
		},
	}
}

// deviceRows строит строки таблицы в порядке ID устройств.
func deviceRows(devices map[string]DeviceResponse, row func(DeviceResponse) []string) [][]string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, len(ids))
	for i, id := range ids {
		d := devices[id]
		if d.ID == "" {
			d.ID = id
		}
		rows[i] = row(d)
	}
	return rows
}

func newLineHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts HistoryOpts

	cmd := &cobra.Command{
		Use:   "history LINE",
		Short: "Show recently dispatched commands of a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			history, err := clientFn().GetHistory(args[0], opts)
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(history)
				return nil
			}

			rows := make([][]string, len(history.Commands))
			for i, rec := range history.Commands {
				c := rec.Command
				detail := c.Params.TargetPoint
				if c.Params.ProductID != "" {
					detail = c.Params.ProductID
				}
				if c.Params.TargetLevel != nil {
					detail = fmt.Sprintf("%.0f%%", *c.Params.TargetLevel)
				}
				rows[i] = []string{rec.DispatchedAt, rec.Mode, c.CommandID, c.Action, c.Target, detail}
			}
			out.Table([]string{"DISPATCHED", "MODE", "COMMAND", "ACTION", "TARGET", "PARAMS"}, rows)

			if len(history.Responses) > 0 {
				out.Section("Responses:")
				resp := make([][]string, len(history.Responses))
				for i, r := range history.Responses {
					resp[i] = []string{r.ReceivedAt, r.CommandID, r.Response}
				}
				out.Table([]string{"RECEIVED", "COMMAND", "RESPONSE"}, resp)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of commands (server default 50)")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "Read from the persistent store instead of memory")

	return cmd
}
