package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// OrderSummary — заказ из списка API.
type OrderSummary struct {
	OrderID        string   `json:"order_id"`
	Status         string   `json:"status"`
	Products       int      `json:"products"`
	CompletionRate float64  `json:"completion_rate"`
	Lines          []string `json:"lines"`
	CreatedAt      string   `json:"created_at"`
	Deadline       string   `json:"deadline,omitempty"`
	Overdue        bool     `json:"overdue"`
}

// ProductResponse — продукт заказа из API.
type ProductResponse struct {
	ProductID       string `json:"product_id"`
	Class           string `json:"product_class"`
	Status          string `json:"status"`
	CurrentLocation string `json:"current_location"`
	AssignedVehicle string `json:"assigned_vehicle,omitempty"`
	NextStep        string `json:"next_step"`
	Line            string `json:"line,omitempty"`
}

// OrderResponse — заказ с продуктами из API.
type OrderResponse struct {
	OrderSummary
	ProductsDetail []ProductResponse `json:"products_detail"`
}

// SubmitOrderResponse — ответ на отправку заказа.
type SubmitOrderResponse struct {
	OrderID   string         `json:"order_id"`
	Published bool           `json:"published"`
	Order     *OrderResponse `json:"order,omitempty"`
}

// LineSummary — командир линии из API.
type LineSummary struct {
	LineID       string   `json:"line_id"`
	Vehicles     []string `json:"vehicles"`
	QueuedEvents int      `json:"queued_events"`
	History      int      `json:"history"`
	Stopped      bool     `json:"stopped"`
}

// DeviceResponse — устройство в снимке линии.
type DeviceResponse struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	Buffer       []string `json:"buffer"`
	OutputBuffer []string `json:"output_buffer"`
	UpperBuffer  []string `json:"upper_buffer"`
	LowerBuffer  []string `json:"lower_buffer"`
	CurrentPoint string   `json:"current_point"`
	TargetPoint  string   `json:"target_point"`
	Payload      []string `json:"payload"`
	BatteryLevel float64  `json:"battery_level"`
}

// SnapshotResponse — снимок состояния линии.
type SnapshotResponse struct {
	LineID     string                    `json:"line_id"`
	Stations   map[string]DeviceResponse `json:"stations"`
	AGVs       map[string]DeviceResponse `json:"agvs"`
	Conveyors  map[string]DeviceResponse `json:"conveyors"`
	Warehouses map[string]DeviceResponse `json:"warehouses"`
	UpdatedAt  string                    `json:"updated_at"`
}

// CommandResponse — команда AGV.
type CommandResponse struct {
	CommandID string `json:"command_id"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Params    struct {
		TargetPoint string   `json:"target_point,omitempty"`
		ProductID   string   `json:"product_id,omitempty"`
		TargetLevel *float64 `json:"target_level,omitempty"`
	} `json:"params"`
	Reasoning string `json:"reasoning,omitempty"`
}

// CommandRecord — отправленная команда из журнала.
type CommandRecord struct {
	LineID       string          `json:"line_id"`
	Command      CommandResponse `json:"command"`
	Mode         string          `json:"mode"`
	DispatchedAt string          `json:"dispatched_at"`
}

// ExecutorResponse — ответ исполнителя на команду.
type ExecutorResponse struct {
	CommandID  string `json:"command_id,omitempty"`
	Response   string `json:"response"`
	ReceivedAt string `json:"received_at"`
}

// HistoryResponse — журнал команд линии.
type HistoryResponse struct {
	LineID    string             `json:"line_id"`
	Source    string             `json:"source"`
	Commands  []CommandRecord    `json:"commands"`
	Responses []ExecutorResponse `json:"responses"`
}

// StatsResponse — сводная статистика.
type StatsResponse struct {
	Orders struct {
		TotalOrders           int            `json:"total_orders"`
		ActiveOrders          int            `json:"active_orders"`
		CompletedOrders       int            `json:"completed_orders"`
		CancelledOrders       int            `json:"cancelled_orders"`
		CompletionRate        float64        `json:"completion_rate"`
		TotalProducts         int            `json:"total_products"`
		DeliveredProducts     int            `json:"delivered_products"`
		FailedProducts        int            `json:"failed_products"`
		ProductCompletionRate float64        `json:"product_completion_rate"`
		LineProducts          map[string]int `json:"line_products"`
	} `json:"orders"`
	Lines []LineSummary `json:"lines"`
}

// HistoryOpts — параметры запроса журнала.
type HistoryOpts struct {
	Limit int
	Store bool
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Factoria API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Orders ---

// ListOrders возвращает заказы. Если status не пустой — фильтрует.
func (c *Client) ListOrders(status string) ([]OrderSummary, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}

	var orders []OrderSummary
	err := c.list("/api/v1/orders", params, &orders)
	return orders, err
}

// GetOrder возвращает заказ по ID.
func (c *Client) GetOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.get("/api/v1/orders/"+url.PathEscape(id), &order)
	return &order, err
}

// SubmitOrder отправляет заказ в формате топика orders/new.
func (c *Client) SubmitOrder(body json.RawMessage) (*SubmitOrderResponse, error) {
	var resp SubmitOrderResponse
	err := c.post("/api/v1/orders", body, &resp)
	return &resp, err
}

// CancelOrder отменяет заказ.
func (c *Client) CancelOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.post("/api/v1/orders/"+url.PathEscape(id)+"/cancel", nil, &order)
	return &order, err
}

// --- Lines ---

// ListLines возвращает линии.
func (c *Client) ListLines() ([]LineSummary, error) {
	var lines []LineSummary
	err := c.list("/api/v1/lines", nil, &lines)
	return lines, err
}

// GetSnapshot возвращает снимок состояния линии.
func (c *Client) GetSnapshot(lineID string) (*SnapshotResponse, error) {
	var snap SnapshotResponse
	err := c.get("/api/v1/lines/"+url.PathEscape(lineID)+"/snapshot", &snap)
	return &snap, err
}

// GetHistory возвращает журнал команд линии.
func (c *Client) GetHistory(lineID string, opts HistoryOpts) (*HistoryResponse, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Store {
		params.Set("source", "store")
	}

	path := "/api/v1/lines/" + url.PathEscape(lineID) + "/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history HistoryResponse
	err := c.get(path, &history)
	return &history, err
}

// GetStats возвращает статистику.
func (c *Client) GetStats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
