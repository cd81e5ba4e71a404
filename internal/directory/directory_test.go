package directory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Factoria/internal/domain"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestDirectory() *Directory {
	return New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  func() time.Time { return t0 },
	})
}

func scenarioPayload(t *testing.T) OrderPayload {
	t.Helper()
	p, err := DecodeOrderPayload([]byte(`{"order_id":"o1","items":[{"class":"A","quantity":2},{"class":"C","quantity":1}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

// --- Payload Tests ---

func TestDecodeOrderPayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		items   int
	}{
		{"valid", `{"order_id":"o1","items":[{"class":"A","quantity":2}]}`, nil, 1},
		{"product_type key", `{"order_id":"o2","items":[{"product_type":"P3","quantity":1}]}`, nil, 1},
		{"numeric order id", `{"order_id":42,"items":[{"class":"B"}]}`, nil, 1},
		{"not json", `{order`, ErrMalformedPayload, 0},
		{"missing order id", `{"items":[{"class":"A","quantity":1}]}`, ErrMissingOrderID, 0},
		{"empty order id", `{"order_id":"  ","items":[]}`, ErrMissingOrderID, 0},
		{"items not a list", `{"order_id":"o3","items":{"class":"A"}}`, ErrInvalidItem, 0},
		{"items missing", `{"order_id":"o3"}`, ErrInvalidItem, 0},
		{"item without class", `{"order_id":"o4","items":[{"quantity":3}]}`, ErrInvalidItem, 0},
		{"item zero quantity", `{"order_id":"o5","items":[{"class":"A","quantity":0}]}`, ErrInvalidItem, 0},
		{"item string quantity", `{"order_id":"o6","items":[{"class":"A","quantity":"two"}]}`, ErrInvalidItem, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeOrderPayload([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(p.Items) != tt.items {
				t.Errorf("items = %d, want %d", len(p.Items), tt.items)
			}
		})
	}
}

func TestDecodeOrderPayload_Deadline(t *testing.T) {
	p, err := DecodeOrderPayload([]byte(`{"order_id":"o1","items":[{"class":"A"}],"deadline":"120"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Deadline == nil || *p.Deadline != 120 {
		t.Fatalf("deadline = %v, want 120", p.Deadline)
	}

	p, err = DecodeOrderPayload([]byte(`{"order_id":"o1","items":[{"class":"A"}],"deadline":"soon"}`))
	if err != nil {
		t.Fatalf("bad deadline should be ignored, got %v", err)
	}
	if p.Deadline != nil {
		t.Error("bad deadline should be dropped")
	}
}

// --- CreateOrder Tests ---

func TestCreateOrder_ExpandsItems(t *testing.T) {
	d := newTestDirectory()

	order, err := d.CreateOrder(scenarioPayload(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.Products) != 3 {
		t.Fatalf("products = %d, want 3", len(order.Products))
	}

	wantIDs := []string{"prod_a_o1_001", "prod_a_o1_002", "prod_c_o1_003"}
	wantClasses := []domain.ProductClass{domain.ProductClassA, domain.ProductClassA, domain.ProductClassC}
	for i, p := range order.Products {
		if p.ID != wantIDs[i] {
			t.Errorf("product[%d].ID = %s, want %s", i, p.ID, wantIDs[i])
		}
		if p.Class != wantClasses[i] {
			t.Errorf("product[%d].Class = %s, want %s", i, p.Class, wantClasses[i])
		}
		if p.Status != domain.ProductStatusPending {
			t.Errorf("product[%d].Status = %s, want pending", i, p.Status)
		}
		if len(p.History) != 1 || p.History[0].Action != domain.ActionOrderReceived {
			t.Errorf("product[%d] should start with order_received history", i)
		}
	}
	if order.Status != domain.OrderStatusPending {
		t.Errorf("status = %s, want pending", order.Status)
	}
}

func TestCreateOrder_Idempotent(t *testing.T) {
	d := newTestDirectory()

	first, err := d.CreateOrder(scenarioPayload(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := d.CreateOrder(scenarioPayload(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Error("expected same order")
	}
	if got := d.Stats().TotalProducts; got != 3 {
		t.Errorf("total products = %d, want 3", got)
	}
}

func TestCreateOrder_UnknownClassDefaultsToA(t *testing.T) {
	d := newTestDirectory()

	order, err := d.CreateOrder(OrderPayload{
		OrderID: "o9",
		Items:   []OrderItem{{Class: "Z", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Products[0].Class != domain.ProductClassA {
		t.Errorf("class = %s, want A", order.Products[0].Class)
	}
}

func TestCreateOrder_Deadline(t *testing.T) {
	d := newTestDirectory()
	offset := 90.0

	order, err := d.CreateOrder(OrderPayload{
		OrderID:  "o1",
		Items:    []OrderItem{{Class: "A", Quantity: 1}},
		Deadline: &offset,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Deadline == nil || !order.Deadline.Equal(t0.Add(90*time.Second)) {
		t.Errorf("deadline = %v, want %v", order.Deadline, t0.Add(90*time.Second))
	}
}

func TestCreateOrder_RejectsMalformed(t *testing.T) {
	d := newTestDirectory()

	tests := []struct {
		name    string
		payload OrderPayload
		wantErr error
	}{
		{"missing id", OrderPayload{Items: []OrderItem{{Class: "A", Quantity: 1}}}, ErrMissingOrderID},
		{"nil items", OrderPayload{OrderID: "o1"}, ErrInvalidItem},
		{"no products", OrderPayload{OrderID: "o1", Items: []OrderItem{}}, ErrEmptyOrder},
		{"bad quantity", OrderPayload{OrderID: "o1", Items: []OrderItem{{Class: "A", Quantity: -1}}}, ErrInvalidItem},
		{"quantity over limit", OrderPayload{OrderID: "o1", Items: []OrderItem{{Class: "A", Quantity: DefaultMaxItemQuantity + 1}}}, ErrInvalidItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := d.CreateOrder(tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if order != nil {
				t.Error("expected nil order")
			}
		})
	}

	if s := d.Stats(); s.TotalOrders != 0 || s.TotalProducts != 0 {
		t.Errorf("malformed payloads mutated state: %+v", s)
	}
}

func TestProcessOrder_MaxItemQuantity(t *testing.T) {
	d := New(Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:           func() time.Time { return t0 },
		MaxItemQuantity: 3,
	})

	p, err := DecodeOrderPayload([]byte(`{"order_id":"o1","items":[{"class":"A","quantity":4}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := d.ProcessOrder(p, "line1"); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
	if s := d.Stats(); s.TotalOrders != 0 || s.TotalProducts != 0 {
		t.Errorf("rejected order mutated state: %+v", s)
	}

	p.Items[0].Quantity = 3
	order, err := d.ProcessOrder(p, "line1")
	if err != nil {
		t.Fatalf("order at the limit: %v", err)
	}
	if len(order.Products) != 3 {
		t.Errorf("products = %d, want 3", len(order.Products))
	}
}

// --- Round Robin Tests ---

func TestNextLineRoundRobin_Rotation(t *testing.T) {
	d := newTestDirectory()

	const n = 10
	counts := make(map[string]int)
	var seq []string
	for range n {
		line := d.NextLineRoundRobin()
		counts[line]++
		seq = append(seq, line)
	}

	for i, line := range seq {
		if want := DefaultLines[i%3]; line != want {
			t.Errorf("seq[%d] = %s, want %s", i, line, want)
		}
	}
	for _, line := range DefaultLines {
		if c := counts[line]; c < n/3 || c > (n+2)/3 {
			t.Errorf("line %s visited %d times", line, c)
		}
	}
}

func TestNextLineRoundRobin_Concurrent(t *testing.T) {
	d := newTestDirectory()

	const n = 300
	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			line := d.NextLineRoundRobin()
			mu.Lock()
			counts[line]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, line := range DefaultLines {
		if counts[line] != n/3 {
			t.Errorf("line %s = %d, want %d", line, counts[line], n/3)
		}
	}
}

// --- ProcessOrder Tests ---

func TestProcessOrder_Scenario(t *testing.T) {
	d := newTestDirectory()

	order, err := d.ProcessOrder(scenarioPayload(t), "line2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.Products) != 3 {
		t.Fatalf("products = %d, want 3", len(order.Products))
	}
	if order.Status != domain.OrderStatusInProgress {
		t.Errorf("status = %s, want in_progress", order.Status)
	}
	if len(order.LineAssignments) != 1 {
		t.Fatalf("expected one line, got %v", order.LineAssignments)
	}
	for line, ids := range order.LineAssignments {
		if line != "line1" {
			t.Errorf("first order should go to line1, got %s", line)
		}
		if len(ids) != 3 {
			t.Errorf("line %s has %d products, want 3", line, len(ids))
		}
	}
}

func TestProcessOrder_Twice(t *testing.T) {
	d := newTestDirectory()

	first, err := d.ProcessOrder(scenarioPayload(t), "line1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := d.ProcessOrder(scenarioPayload(t), "line2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Error("expected same order identity")
	}
	if got := d.Stats().TotalProducts; got != 3 {
		t.Errorf("products created = %d, want 3", got)
	}
	if got := d.NextLineRoundRobin(); got != "line2" {
		t.Errorf("duplicate must not advance rotation, next = %s", got)
	}
}

func TestProcessOrder_ConcurrentSameOrder(t *testing.T) {
	d := newTestDirectory()
	p := scenarioPayload(t)

	var wg sync.WaitGroup
	for _, line := range []string{"line1", "line2", "line3", "line1", "line2", "line3"} {
		wg.Add(1)
		go func(line string) {
			defer wg.Done()
			if _, err := d.ProcessOrder(p, line); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(line)
	}
	wg.Wait()

	s := d.Stats()
	if s.TotalOrders != 1 || s.TotalProducts != 3 {
		t.Errorf("expected 1 order with 3 products, got %+v", s)
	}

	order, _ := d.Order("o1")
	if len(order.LineAssignments) != 1 {
		t.Errorf("batch split across lines: %v", order.LineAssignments)
	}
}

func TestProcessOrder_DistributesOrders(t *testing.T) {
	d := newTestDirectory()

	for i := range 3 {
		_, err := d.ProcessOrder(OrderPayload{
			OrderID: fmt.Sprintf("o%d", i),
			Items:   []OrderItem{{Class: "A", Quantity: 1}},
		}, "line1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, line := range DefaultLines {
		if got := len(d.OrdersForLine(line, 0)); got != 1 {
			t.Errorf("line %s has %d orders, want 1", line, got)
		}
	}
}

// --- Transport & Completion Tests ---

func TestProductsNeedingTransport(t *testing.T) {
	d := newTestDirectory()
	if _, err := d.ProcessOrder(scenarioPayload(t), "line1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(d.ProductsNeedingTransport("line1")); got != 3 {
		t.Fatalf("needing transport = %d, want 3", got)
	}
	if got := len(d.ProductsNeedingTransport("line2")); got != 0 {
		t.Errorf("other line should have none, got %d", got)
	}

	// В пути — не нужен забор
	if err := d.AssignVehicle("prod_a_o1_001", "AGV_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// На станции — не нужен забор
	if err := d.TransitionProduct("prod_a_o1_002", domain.ProductStatusAtStation1, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	needing := d.ProductsNeedingTransport("line1")
	if len(needing) != 1 || needing[0].ID != "prod_c_o1_003" {
		t.Errorf("unexpected products: %v", productIDsOf(needing))
	}
}

func TestCompletion_IffAllTerminal(t *testing.T) {
	d := newTestDirectory()
	if _, err := d.ProcessOrder(scenarioPayload(t), "line1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	drive := func(id string) {
		t.Helper()
		for {
			p, err := d.Product(id)
			if err != nil {
				t.Fatalf("product: %v", err)
			}
			if p.Status.IsTerminal() {
				return
			}
			if err := d.TransitionProduct(id, p.NextStatus(), ""); err != nil {
				t.Fatalf("transition %s: %v", id, err)
			}
		}
	}

	drive("prod_a_o1_001")
	drive("prod_a_o1_002")

	if got := d.MarkCompletedOrders(); len(got) != 0 {
		t.Fatalf("order completed with pending product: %v", got)
	}
	order, _ := d.Order("o1")
	if order.Status == domain.OrderStatusCompleted {
		t.Fatal("order should not be completed yet")
	}

	// Продукт класса C: маршрут через QC и отказ на контроле
	for _, s := range []domain.ProductStatus{
		domain.ProductStatusAtStation1,
		domain.ProductStatusAtStation2,
		domain.ProductStatusAtStation3,
		domain.ProductStatusAtStation2,
		domain.ProductStatusAtStation3,
		domain.ProductStatusAtQualityCheck,
		domain.ProductStatusFailedQualityCheck,
	} {
		if err := d.TransitionProduct("prod_c_o1_003", s, ""); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}

	order, _ = d.Order("o1")
	if order.Status != domain.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", order.Status)
	}
	if s := d.Stats(); s.ActiveOrders != 0 || s.CompletedOrders != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestMarkCompletedOrders_ConcurrentWithProcessOrder(t *testing.T) {
	d := newTestDirectory()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = d.ProcessOrder(OrderPayload{
				OrderID: fmt.Sprintf("o%d", i),
				Items:   []OrderItem{{Class: "B", Quantity: 2}},
			}, "line1")
		}(i)
		go func() {
			defer wg.Done()
			d.MarkCompletedOrders()
		}()
	}
	wg.Wait()

	s := d.Stats()
	if s.TotalOrders != 50 || s.ActiveOrders != 50 || s.CompletedOrders != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestObserveProductAt(t *testing.T) {
	d := newTestDirectory()
	if _, err := d.ProcessOrder(scenarioPayload(t), "line1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err := d.ObserveProductAt("prod_a_o1_001", domain.LocationStationA)
	if err != nil || !changed {
		t.Fatalf("ObserveProductAt = %v, %v; want true, nil", changed, err)
	}

	// Повторное наблюдение
	changed, err = d.ObserveProductAt("prod_a_o1_001", domain.LocationStationA)
	if err != nil || changed {
		t.Errorf("repeat observation = %v, %v; want false, nil", changed, err)
	}

	// Перескок через станцию не применяется
	changed, _ = d.ObserveProductAt("prod_a_o1_001", domain.LocationQualityCheck)
	if changed {
		t.Error("out-of-route observation must not transition")
	}

	if _, err := d.ObserveProductAt("prod_x", domain.LocationStationA); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}
}

func TestAssignToLine(t *testing.T) {
	d := newTestDirectory()
	if _, err := d.CreateOrder(scenarioPayload(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.AssignToLine("o1", "line9"); !errors.Is(err, ErrUnknownLine) {
		t.Errorf("expected ErrUnknownLine, got %v", err)
	}
	if err := d.AssignToLine("missing", "line1"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}

	if err := d.AssignToLine("o1", "line2", "prod_a_o1_001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.AssignToLine("o1", "line3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, _ := d.Order("o1")
	if got := order.LineAssignments["line2"]; len(got) != 1 {
		t.Errorf("line2 = %v, want one product", got)
	}
	if got := order.LineAssignments["line3"]; len(got) != 2 {
		t.Errorf("line3 = %v, want the two remaining products", got)
	}
	if order.Status != domain.OrderStatusInProgress {
		t.Errorf("status = %s, want in_progress", order.Status)
	}
}

func TestCancelOrder(t *testing.T) {
	d := newTestDirectory()
	if _, err := d.ProcessOrder(scenarioPayload(t), "line1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, err := d.CancelOrder("o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", order.Status)
	}
	if got := len(d.ProductsNeedingTransport("line1")); got != 0 {
		t.Errorf("cancelled order still needs transport: %d", got)
	}
	if _, err := d.CancelOrder("o1"); !errors.Is(err, ErrOrderTerminal) {
		t.Errorf("expected ErrOrderTerminal, got %v", err)
	}
}

func TestReadersReceiveCopies(t *testing.T) {
	d := newTestDirectory()
	order, err := d.ProcessOrder(scenarioPayload(t), "line1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order.Products[0].Status = domain.ProductStatusDelivered
	order.Status = domain.OrderStatusCancelled

	fresh, _ := d.Order("o1")
	if fresh.Status != domain.OrderStatusInProgress {
		t.Error("caller mutation leaked into directory order")
	}
	if fresh.Products[0].Status != domain.ProductStatusPending {
		t.Error("caller mutation leaked into directory product")
	}
}

func TestOverdueOrders(t *testing.T) {
	d := newTestDirectory()
	offset := 60.0
	if _, err := d.ProcessOrder(OrderPayload{
		OrderID:  "late",
		Items:    []OrderItem{{Class: "A", Quantity: 1}},
		Deadline: &offset,
	}, "line1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := d.OverdueOrders(t0.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("expected no overdue orders, got %d", len(got))
	}
	if got := d.OverdueOrders(t0.Add(2 * time.Minute)); len(got) != 1 {
		t.Errorf("expected one overdue order, got %d", len(got))
	}
}
