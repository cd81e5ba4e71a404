package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewOrderCmd создаёт группу команд для работы с заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orders",
		Aliases: []string{"order"},
		Short:   "Manage production orders",
	}

	cmd.AddCommand(
		newOrderListCmd(clientFn, outputFn),
		newOrderShowCmd(clientFn, outputFn),
		newOrderSubmitCmd(clientFn, outputFn),
		newOrderCancelCmd(clientFn, outputFn),
	)

	return cmd
}

var orderHeaders = []string{"ID", "STATUS", "PRODUCTS", "DONE", "LINES", "OVERDUE", "CREATED"}

func orderRow(o OrderSummary) []string {
	return []string{
		o.OrderID,
		o.Status,
		strconv.Itoa(o.Products),
		percent(o.CompletionRate),
		joinIDs(o.Lines),
		strconv.FormatBool(o.Overdue),
		o.CreatedAt,
	}
}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListOrders(status)
			if err != nil {
				return err
			}

			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = orderRow(o)
			}

			out.Print(orderHeaders, rows, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, in_progress, completed, cancelled)")

	return cmd
}

func newOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show order with its products",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(args[0])
			if err != nil {
				return err
			}

			printOrder(out, order)
			return nil
		},
	}
}

func printOrder(out *Output, order *OrderResponse) {
	if out.IsJSON() {
		out.JSON(order)
		return
	}

	out.Table(orderHeaders, [][]string{orderRow(order.OrderSummary)})
	out.Section("Products:")

	rows := make([][]string, len(order.ProductsDetail))
	for i, p := range order.ProductsDetail {
		vehicle := p.AssignedVehicle
		if vehicle == "" {
			vehicle = "-"
		}
		rows[i] = []string{p.ProductID, p.Class, p.Status, p.CurrentLocation, p.NextStep, vehicle, p.Line}
	}
	out.Table([]string{"PRODUCT", "CLASS", "STATUS", "LOCATION", "NEXT", "AGV", "LINE"}, rows)
}

func newOrderSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		file     string
		orderID  string
		items    []string
		deadline float64
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new order",
		Long: `Submit a new order, either from a JSON file in the orders/new format
or built from flags:

  factoria orders submit --file order.json
  factoria orders submit --id o42 --item A=2 --item C=1 --deadline 600`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var body json.RawMessage
			var err error
			if file != "" {
				body, err = readOrderFile(file, cmd.InOrStdin())
			} else {
				body, err = buildOrder(orderID, items, deadline)
			}
			if err != nil {
				return err
			}

			resp, err := client.SubmitOrder(body)
			if err != nil {
				return err
			}

			if resp.Published {
				out.Success(fmt.Sprintf("Order published: %s", resp.OrderID))
				if out.IsJSON() {
					out.JSON(resp)
				}
				return nil
			}

			out.Success(fmt.Sprintf("Order assigned: %s", resp.OrderID))
			if resp.Order != nil {
				printOrder(out, resp.Order)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to order JSON file ('-' for stdin)")
	cmd.Flags().StringVar(&orderID, "id", "", "Order ID")
	cmd.Flags().StringArrayVar(&items, "item", nil, "Item as CLASS=QUANTITY (repeatable)")
	cmd.Flags().Float64Var(&deadline, "deadline", 0, "Deadline in seconds from now")
	cmd.MarkFlagsMutuallyExclusive("file", "id")
	cmd.MarkFlagsMutuallyExclusive("file", "item")

	return cmd
}

func readOrderFile(path string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order file: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("order file is not valid JSON")
	}
	return json.RawMessage(data), nil
}

type orderItem struct {
	Class    string `json:"product_class"`
	Quantity int    `json:"quantity"`
}

type orderBody struct {
	OrderID  string      `json:"order_id"`
	Items    []orderItem `json:"items"`
	Deadline float64     `json:"deadline,omitempty"`
}

// buildOrder собирает тело заказа из флагов: --item A=2 --item B.
func buildOrder(orderID string, items []string, deadline float64) (json.RawMessage, error) {
	if orderID == "" {
		return nil, fmt.Errorf("either --file or --id is required")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("at least one --item is required")
	}
	if deadline < 0 {
		return nil, fmt.Errorf("--deadline must not be negative")
	}

	body := orderBody{OrderID: orderID, Deadline: deadline}
	for _, raw := range items {
		class, qty, found := strings.Cut(raw, "=")
		item := orderItem{Class: strings.ToUpper(strings.TrimSpace(class)), Quantity: 1}
		if item.Class == "" {
			return nil, fmt.Errorf("invalid --item %q: missing class", raw)
		}
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid --item %q: quantity must be a positive integer", raw)
			}
			item.Quantity = n
		}
		body.Items = append(body.Items, item)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}
	return data, nil
}

func newOrderCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an unfinished order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.CancelOrder(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order cancelled: %s", order.OrderID))
			out.Print(orderHeaders, [][]string{orderRow(order.OrderSummary)}, order)
			return nil
		},
	}
}
