package commander

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/oracle"
	"github.com/shaiso/Factoria/internal/state"
)

var t0 = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePublisher запоминает опубликованные команды.
type fakePublisher struct {
	mu   sync.Mutex
	cmds []domain.Command
	err  error
}

func (p *fakePublisher) PublishCommand(_ context.Context, _ string, cmd domain.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.cmds = append(p.cmds, cmd)
	return nil
}

func (p *fakePublisher) published() []domain.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Command(nil), p.cmds...)
}

// fakeStore — HistoryStore в памяти.
type fakeStore struct {
	mu        sync.Mutex
	commands  []domain.CommandRecord
	responses []domain.CommandResponse
}

func (s *fakeStore) SaveCommand(_ context.Context, rec domain.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, rec)
	return nil
}

func (s *fakeStore) SaveResponse(_ context.Context, resp domain.CommandResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return nil
}

func (s *fakeStore) counts() (commands, responses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commands), len(s.responses)
}

// blockingStore — HistoryStore, запись в который ждёт отмены контекста.
type blockingStore struct {
	calls atomic.Int32
}

func (s *blockingStore) SaveCommand(ctx context.Context, _ domain.CommandRecord) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingStore) SaveResponse(ctx context.Context, _ domain.CommandResponse) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

type testLine struct {
	commander *Commander
	agg       *state.Aggregator
	dir       *directory.Directory
	pub       *fakePublisher
	store     *fakeStore
}

func newTestLine(t *testing.T, o oracle.Oracle, mutate ...func(*Config)) *testLine {
	t.Helper()
	dir := directory.New(directory.Config{
		Lines:  []string{"line1"},
		Logger: discardLogger(),
		Clock:  func() time.Time { return t0 },
	})
	return newTestLineWith(t, "line1", dir, o, mutate...)
}

func newTestLineWith(t *testing.T, lineID string, dir *directory.Directory, o oracle.Oracle, mutate ...func(*Config)) *testLine {
	t.Helper()
	agg := state.NewAggregator(state.Config{
		LineID: lineID,
		Logger: discardLogger(),
		Clock:  func() time.Time { return t0 },
	})
	pub := &fakePublisher{}
	store := &fakeStore{}

	cfg := Config{
		LineID:            lineID,
		Vehicles:          []string{"AGV_1", "AGV_2"},
		SecondPassVehicle: "AGV_2",
		Directory:         dir,
		Source:            agg,
		Oracle:            o,
		Publisher:         pub,
		Store:             store,
		PlannedInterval:   time.Hour,
		ReactiveTimeout:   10 * time.Millisecond,
		DeferDelay:        time.Millisecond,
		Logger:            discardLogger(),
		Clock:             func() time.Time { return t0 },
	}
	for _, m := range mutate {
		m(&cfg)
	}

	c := New(cfg)
	t.Cleanup(c.Stop)
	return &testLine{commander: c, agg: agg, dir: dir, pub: pub, store: store}
}

func staticOracle(cmds ...domain.Command) oracle.Oracle {
	return oracle.Func(func(context.Context, oracle.Context) ([]domain.Command, error) {
		return cmds, nil
	})
}

func level(v float64) *float64 { return &v }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// --- Classification Tests ---

func TestStationBlocked_EnqueuesOneCriticalEvent(t *testing.T) {
	line := newTestLine(t, staticOracle())
	before := line.commander.Queue().Len()

	topic := state.StatusTopic(state.DefaultTopicRoot, "line1", state.CategoryStation, "StationB")
	if err := line.agg.Ingest(topic, []byte(`{"status":"blocked","buffer":[]}`)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := line.commander.Queue().Len(); got != before+1 {
		t.Fatalf("queue length = %d, want %d", got, before+1)
	}

	ev, ok := line.commander.Queue().Pop(context.Background(), time.Second)
	if !ok {
		t.Fatal("expected queued event")
	}
	if ev.Kind != domain.EventStationBlocked || ev.Severity != domain.SeverityCritical {
		t.Errorf("event = %s/%s, want station_blocked/critical", ev.Kind, ev.Severity)
	}
	if ev.DeviceID != "StationB" || ev.LineID != "line1" || ev.ID == "" {
		t.Errorf("unexpected event metadata: %+v", ev)
	}
}

func TestAlert_EnqueuesFactoryAlert(t *testing.T) {
	line := newTestLine(t, staticOracle())
	before := line.commander.Queue().Len()

	topic := state.AlertsTopic(state.DefaultTopicRoot, "line1")
	body := []byte(`{"device_id":"StationB","alert_type":"device_fault","severity":"critical","message":"jam"}`)
	if err := line.agg.Ingest(topic, body); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if got := line.commander.Queue().Len(); got != before+1 {
		t.Fatalf("queue length = %d, want %d", got, before+1)
	}
	ev, ok := line.commander.Queue().Pop(context.Background(), time.Second)
	if !ok {
		t.Fatal("expected queued event")
	}
	if ev.Kind != domain.EventFactoryAlert || ev.Severity != domain.SeverityCritical {
		t.Errorf("event = %s/%s, want factory_alert/critical", ev.Kind, ev.Severity)
	}
	if ev.DeviceID != "StationB" || ev.Details["alert_type"] != "device_fault" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

// --- Dispatch Tests ---

func TestDispatch_AssignsIDAndPublishesOnce(t *testing.T) {
	line := newTestLine(t, staticOracle())
	c := line.commander

	cmds := []domain.Command{
		{Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P0"}},
		{CommandID: "fixed", Action: domain.ActionUnload, Target: "AGV_2"},
	}

	sent := c.Dispatch(context.Background(), oracle.ModePlanned, cmds)
	if len(sent) != 2 {
		t.Fatalf("dispatched %d, want 2", len(sent))
	}
	if sent[0].CommandID == "" {
		t.Error("command without id must receive one")
	}
	if sent[0].CommandID == sent[1].CommandID {
		t.Error("command ids must be unique")
	}

	// Повтор того же ID не публикуется.
	again := c.Dispatch(context.Background(), oracle.ModeReactive, []domain.Command{cmds[1]})
	if len(again) != 0 {
		t.Errorf("re-dispatch of %q should be skipped", cmds[1].CommandID)
	}

	if got := len(line.pub.published()); got != 2 {
		t.Errorf("published = %d, want 2", got)
	}
	if got := c.History().Len(); got != 2 {
		t.Errorf("history = %d, want 2", got)
	}
	// Stop дописывает буфер истории в хранилище.
	c.Stop()
	if got, _ := line.store.counts(); got != 2 {
		t.Errorf("stored = %d, want 2", got)
	}

	recent := c.History().Recent(1)
	if len(recent) != 1 || recent[0].Command.CommandID != "fixed" || recent[0].Mode != "planned" {
		t.Errorf("unexpected recent history: %+v", recent)
	}
}

func TestDispatch_DuplicateLoggedAtInfo(t *testing.T) {
	var logs bytes.Buffer
	line := newTestLine(t, staticOracle(), func(c *Config) {
		c.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	})
	cmd := domain.Command{CommandID: "dup", Action: domain.ActionUnload, Target: "AGV_1"}

	line.commander.Dispatch(context.Background(), oracle.ModePlanned, []domain.Command{cmd})
	line.commander.Dispatch(context.Background(), oracle.ModeReactive, []domain.Command{cmd})

	var skipped []string
	for _, l := range strings.Split(logs.String(), "\n") {
		if strings.Contains(l, "command skipped") {
			skipped = append(skipped, l)
		}
	}
	if len(skipped) != 1 {
		t.Fatalf("skip lines = %d, want 1:\n%s", len(skipped), logs.String())
	}
	for _, want := range []string{"level=INFO", "target=AGV_1", "mode=reactive"} {
		if !strings.Contains(skipped[0], want) {
			t.Errorf("skip line missing %q: %s", want, skipped[0])
		}
	}
}

func TestDispatch_LoadAssignsVehicle(t *testing.T) {
	line := newTestLine(t, staticOracle())
	p, _ := directory.DecodeOrderPayload([]byte(`{"order_id":"o1","items":[{"class":"A","quantity":1}]}`))
	if _, err := line.dir.ProcessOrder(p, "line1"); err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}

	line.commander.Dispatch(context.Background(), oracle.ModePlanned, []domain.Command{
		{Action: domain.ActionLoad, Target: "AGV_1", Params: domain.CommandParams{ProductID: "prod_a_o1_001"}},
	})

	product, err := line.dir.Product("prod_a_o1_001")
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if product.AssignedVehicle != "AGV_1" {
		t.Errorf("assigned vehicle = %q, want AGV_1", product.AssignedVehicle)
	}
	if len(line.dir.ProductsNeedingTransport("line1")) != 0 {
		t.Error("loaded product should no longer need transport")
	}
}

func TestDispatch_PublishFailureContinues(t *testing.T) {
	line := newTestLine(t, staticOracle())
	line.pub.err = errors.New("broker down")

	sent := line.commander.Dispatch(context.Background(), oracle.ModePlanned, []domain.Command{
		{Action: domain.ActionUnload, Target: "AGV_1"},
		{Action: domain.ActionUnload, Target: "AGV_2"},
	})
	if len(sent) != 0 {
		t.Errorf("expected no successful dispatch, got %d", len(sent))
	}
}

// --- Cycle Tests ---

func TestPlannedCycle_FiltersInvalidCommands(t *testing.T) {
	var got oracle.Context
	o := oracle.Func(func(_ context.Context, c oracle.Context) ([]domain.Command, error) {
		got = c
		return []domain.Command{
			{Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P99"}},
			{Action: domain.ActionMove, Target: "AGV_9", Params: domain.CommandParams{TargetPoint: "P1"}},
			{Action: domain.ActionCharge, Target: "AGV_2", Params: domain.CommandParams{TargetLevel: level(150)}},
			{Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P1"}},
			{Action: domain.ActionUnload, Target: "AGV_1"},
			{Action: domain.ActionCharge, Target: "AGV_2", Params: domain.CommandParams{TargetLevel: level(80)}},
		}, nil
	})
	line := newTestLine(t, o)

	line.commander.runPlanned(context.Background())

	published := line.pub.published()
	if len(published) != 2 {
		t.Fatalf("published %d commands, want 2: %+v", len(published), published)
	}
	if published[0].Target != "AGV_1" || published[0].Params.TargetPoint != "P1" {
		t.Errorf("first command = %+v, want AGV_1 move P1", published[0])
	}
	if published[1].Target != "AGV_2" || published[1].Action != domain.ActionCharge {
		t.Errorf("second command = %+v, want AGV_2 charge", published[1])
	}

	if got.Mode != oracle.ModePlanned || got.LineID != "line1" || len(got.Vehicles) != 2 {
		t.Errorf("unexpected planned context: %+v", got)
	}
}

func TestCycle_OracleFailureIsIsolated(t *testing.T) {
	tests := []struct {
		name   string
		oracle oracle.Oracle
	}{
		{"error", oracle.Func(func(context.Context, oracle.Context) ([]domain.Command, error) {
			return nil, oracle.ErrNoProposals
		})},
		{"panic", oracle.Func(func(context.Context, oracle.Context) ([]domain.Command, error) {
			panic("oracle bug")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := newTestLine(t, tt.oracle)
			line.commander.runPlanned(context.Background())
			line.commander.runReactive(context.Background(), domain.Event{Kind: domain.EventNewOrder, Severity: domain.SeverityHigh})

			if len(line.pub.published()) != 0 {
				t.Error("failed oracle must produce no commands")
			}
			if line.commander.planning.Load() {
				t.Error("planning flag must be cleared after a failed cycle")
			}
		})
	}
}

func TestReactiveContext(t *testing.T) {
	var got oracle.Context
	line := newTestLine(t, oracle.Func(func(_ context.Context, c oracle.Context) ([]domain.Command, error) {
		got = c
		return nil, nil
	}))

	ev := domain.Event{ID: "e1", Kind: domain.EventAGVLoadedIdle, Severity: domain.SeverityHigh, DeviceID: "AGV_1"}
	line.commander.runReactive(context.Background(), ev)

	if got.Mode != oracle.ModeReactive {
		t.Errorf("mode = %q, want reactive", got.Mode)
	}
	if got.Trigger == nil || got.Trigger.ID != "e1" {
		t.Errorf("trigger = %+v, want e1", got.Trigger)
	}
	if got.MaxCommands != reactiveMaxCommands {
		t.Errorf("max commands = %d", got.MaxCommands)
	}
}

func TestDeferEvent(t *testing.T) {
	line := newTestLine(t, staticOracle(), func(c *Config) { c.QueueCapacity = 1 })
	c := line.commander

	ev := domain.Event{ID: "e1", Kind: domain.EventRawMaterialsAvailable, Severity: domain.SeverityHigh}
	c.deferEvent(context.Background(), ev)

	if c.Queue().Len() != 1 {
		t.Fatalf("deferred event must be re-enqueued")
	}

	// Очередь полна — повторная постановка отбрасывает событие.
	c.deferEvent(context.Background(), domain.Event{ID: "e2", Kind: domain.EventNewOrder, Severity: domain.SeverityHigh})
	if c.Queue().Len() != 1 {
		t.Fatalf("queue length = %d, want 1", c.Queue().Len())
	}

	got, _ := c.Queue().Pop(context.Background(), time.Second)
	if got.ID != "e1" || got.Attempts != 1 {
		t.Errorf("unexpected deferred event: %+v", got)
	}
}

func TestReactiveLoop_DefersWhilePlanning(t *testing.T) {
	var calls atomic.Int32
	line := newTestLine(t, oracle.Func(func(context.Context, oracle.Context) ([]domain.Command, error) {
		calls.Add(1)
		return nil, nil
	}))
	c := line.commander

	c.planning.Store(true)
	c.Enqueue(domain.Event{ID: "e1", Kind: domain.EventNewOrder, Severity: domain.SeverityHigh})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("reactive cycle must not run while a planned cycle is in progress")
	}

	c.planning.Store(false)
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })
}

// --- Lifecycle Tests ---

func TestStartStop(t *testing.T) {
	var planned, reactive atomic.Int32
	o := oracle.Func(func(_ context.Context, oc oracle.Context) ([]domain.Command, error) {
		if oc.Mode == oracle.ModePlanned {
			planned.Add(1)
		} else {
			reactive.Add(1)
		}
		return []domain.Command{{Action: domain.ActionUnload, Target: "AGV_1"}}, nil
	})
	line := newTestLine(t, o, func(c *Config) { c.PlannedInterval = 10 * time.Millisecond })
	c := line.commander

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	c.Enqueue(domain.Event{ID: "e1", Kind: domain.EventAGVLoadedIdle, Severity: domain.SeverityHigh})
	waitFor(t, 2*time.Second, func() bool { return planned.Load() > 0 && reactive.Load() > 0 })

	c.Stop()
	c.Stop()

	if !c.IsStopped() {
		t.Error("expected stopped")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrCommanderStopped) {
		t.Errorf("Start after Stop: expected ErrCommanderStopped, got %v", err)
	}

	count := len(line.pub.published())
	time.Sleep(30 * time.Millisecond)
	if len(line.pub.published()) != count {
		t.Error("no commands may be published after Stop")
	}
}

func TestStop_DiscardsInFlightResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	o := oracle.Func(func(context.Context, oracle.Context) ([]domain.Command, error) {
		once.Do(func() { close(entered) })
		<-release
		return []domain.Command{{Action: domain.ActionUnload, Target: "AGV_1"}}, nil
	})
	line := newTestLine(t, o, func(c *Config) { c.PlannedInterval = 5 * time.Millisecond })
	c := line.commander

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-entered

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	waitFor(t, time.Second, c.IsStopped)
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after oracle call completed")
	}

	if got := len(line.pub.published()); got != 0 {
		t.Errorf("published %d commands after stop, want 0", got)
	}
}

// --- Enqueue Tests ---

func TestEnqueue_DropsNewestWhenFull(t *testing.T) {
	var logs bytes.Buffer
	line := newTestLine(t, staticOracle(), func(c *Config) {
		c.QueueCapacity = 5
		c.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	})
	c := line.commander

	for i := range 6 {
		c.Enqueue(domain.Event{ID: string(rune('a' + i)), Kind: domain.EventRawMaterialsAvailable, Severity: domain.SeverityHigh})
	}

	if got := c.Queue().Len(); got != 5 {
		t.Fatalf("queue length = %d, want 5", got)
	}
	if got := strings.Count(logs.String(), "event dropped"); got != 1 {
		t.Errorf("logged drops = %d, want 1", got)
	}

	// Отброшено последнее событие.
	for range 5 {
		ev, _ := c.Queue().Pop(context.Background(), time.Second)
		if ev.ID == "f" {
			t.Error("newest event should have been dropped")
		}
	}
}

// --- Order & Response Tests ---

func TestNewOrder_HandledByAssignedLineOnly(t *testing.T) {
	dir := directory.New(directory.Config{
		Lines:  []string{"line1", "line2"},
		Logger: discardLogger(),
		Clock:  func() time.Time { return t0 },
	})
	line1 := newTestLineWith(t, "line1", dir, staticOracle())
	line2 := newTestLineWith(t, "line2", dir, staticOracle())

	body := []byte(`{"order_id":"o1","items":[{"class":"A","quantity":2},{"class":"C","quantity":1}]}`)
	topic := state.OrdersTopic(state.DefaultTopicRoot)
	for _, l := range []*testLine{line1, line2} {
		if err := l.agg.Ingest(topic, body); err != nil {
			t.Fatalf("ingest order: %v", err)
		}
	}

	order, err := dir.Order("o1")
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order.Products) != 3 || order.Status != domain.OrderStatusInProgress {
		t.Fatalf("unexpected order: %+v", order)
	}
	if len(order.LineAssignments["line1"]) != 3 {
		t.Errorf("line1 assignments = %v, want all 3 products", order.LineAssignments)
	}

	if line1.commander.Queue().Len() != 1 {
		t.Errorf("line1 queue = %d, want 1", line1.commander.Queue().Len())
	}
	if line2.commander.Queue().Len() != 0 {
		t.Errorf("line2 queue = %d, want 0", line2.commander.Queue().Len())
	}

	ev, _ := line1.commander.Queue().Pop(context.Background(), time.Second)
	if ev.Kind != domain.EventNewOrder || ev.Details["order_id"] != "o1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestMalformedOrder_NoStateChange(t *testing.T) {
	line := newTestLine(t, staticOracle())
	topic := state.OrdersTopic(state.DefaultTopicRoot)

	_ = line.agg.Ingest(topic, []byte(`{"order_id":"o1","items":"lots"}`))

	if len(line.dir.Orders()) != 0 {
		t.Error("malformed order must not create state")
	}
	if line.commander.Queue().Len() != 0 {
		t.Error("malformed order must not enqueue events")
	}
}

func TestResponse_Recorded(t *testing.T) {
	line := newTestLine(t, staticOracle())
	topic := state.ResponseTopic(state.DefaultTopicRoot, "line1")

	if err := line.agg.Ingest(topic, []byte(`{"command_id":"c1","response":"ok"}`)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	responses := line.commander.History().Responses(0)
	if len(responses) != 1 || responses[0].CommandID != "c1" {
		t.Fatalf("unexpected responses: %+v", responses)
	}
	line.commander.Stop()
	if _, n := line.store.counts(); n != 1 {
		t.Errorf("stored responses = %d, want 1", n)
	}
}

func TestResponse_SlowStoreDoesNotBlockIngest(t *testing.T) {
	store := &blockingStore{}
	line := newTestLine(t, staticOracle(), func(c *Config) {
		c.Store = store
		c.StoreTimeout = 50 * time.Millisecond
	})
	if err := line.commander.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	topic := state.ResponseTopic(state.DefaultTopicRoot, "line1")

	start := time.Now()
	for _, id := range []string{"c1", "c2", "c3"} {
		body := []byte(`{"command_id":"` + id + `","response":"ok"}`)
		if err := line.agg.Ingest(topic, body); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("ingest took %s, must not wait for the store", elapsed)
	}

	if got := len(line.commander.History().Responses(0)); got != 3 {
		t.Errorf("responses in memory = %d, want 3", got)
	}
	waitFor(t, time.Second, func() bool { return store.calls.Load() >= 1 })

	stopped := make(chan struct{})
	go func() {
		line.commander.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop must not wait for a stuck store beyond its timeout")
	}
}

func TestStoreWriter_DropsWhenFull(t *testing.T) {
	var logs bytes.Buffer
	store := &blockingStore{}
	w := newStoreWriter(store, "line1", 1, 20*time.Millisecond, slog.New(slog.NewTextHandler(&logs, nil)))

	resp := domain.CommandResponse{LineID: "line1", CommandID: "c1"}
	if err := w.Submit(persistJob{response: &resp}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := w.Submit(persistJob{response: &resp}); !errors.Is(err, ErrStoreBacklog) {
		t.Errorf("expected ErrStoreBacklog, got %v", err)
	}
	if !strings.Contains(logs.String(), "history write dropped") {
		t.Errorf("drop not logged:\n%s", logs.String())
	}

	w.Close()
	if err := w.Submit(persistJob{response: &resp}); !errors.Is(err, ErrCommanderStopped) {
		t.Errorf("submit after close: expected ErrCommanderStopped, got %v", err)
	}
	w.Close()
}

// --- Fleet Tests ---

func TestFleet(t *testing.T) {
	dir := directory.New(directory.Config{Logger: discardLogger()})
	line1 := newTestLineWith(t, "line1", dir, staticOracle())
	line2 := newTestLineWith(t, "line2", dir, staticOracle())

	if _, err := NewFleet(discardLogger(), line1.commander, line1.commander); err == nil {
		t.Fatal("expected duplicate line error")
	}

	fleet, err := NewFleet(discardLogger(), line1.commander, line2.commander)
	if err != nil {
		t.Fatalf("NewFleet: %v", err)
	}
	if got := fleet.Lines(); len(got) != 2 || got[0] != "line1" {
		t.Errorf("lines = %v", got)
	}
	if _, ok := fleet.Line("line3"); ok {
		t.Error("unexpected line3")
	}

	if err := fleet.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fleet.Stop()
	fleet.Stop()

	if !line1.commander.IsStopped() || !line2.commander.IsStopped() {
		t.Error("fleet must stop every line")
	}
}
