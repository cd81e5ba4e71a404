// Factoria Commander — координатор AGV производственных линий.
//
// Commander:
//   - Подписывается на телеметрию линий в RabbitMQ
//   - Ведёт каталог заказов и жизненный цикл продуктов
//   - Запускает плановый и реактивный циклы решений для каждой линии
//   - Публикует команды AGV и отдаёт HTTP API, /healthz и /metrics
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Factoria/internal/api"
	"github.com/shaiso/Factoria/internal/commander"
	"github.com/shaiso/Factoria/internal/config"
	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/mq"
	"github.com/shaiso/Factoria/internal/oracle"
	"github.com/shaiso/Factoria/internal/repo"
	"github.com/shaiso/Factoria/internal/scheduler"
	"github.com/shaiso/Factoria/internal/state"
	"github.com/shaiso/Factoria/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting factoria-commander")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ: единственная фатальная зависимость
	conn, err := mq.DialWithRetry(ctx, cfg.RabbitMQURL, cfg.BusConnectAttempts, time.Second, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	publisher := mq.NewPublisher(conn, cfg.TopicRoot, logger)

	// PostgreSQL: опционально
	var store *repo.CommandRepo
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Warn("database not available, command history stays in memory", "error", err)
		} else {
			defer pool.Close()
			store = repo.NewCommandRepo(pool)
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Warn("failed to ensure schema, command history stays in memory", "error", err)
				store = nil
			} else {
				logger.Info("database connected")
			}
		}
	}

	dir := directory.New(directory.Config{
		Lines:           cfg.LineIDs(),
		Logger:          logger,
		MaxItemQuantity: cfg.MaxItemQuantity,
	})

	// Линии: агрегатор, командир и consumer на каждую
	var (
		commanders []*commander.Commander
		consumers  []*mq.Consumer
		topologies []mq.LineTopology
	)
	for _, line := range cfg.Lines {
		lineLogger := telemetry.WithLineID(logger, line.ID)

		agg := state.NewAggregator(state.Config{
			LineID:    line.ID,
			TopicRoot: cfg.TopicRoot,
			Logger:    logger,
		})

		c := commander.New(commander.Config{
			LineID:            line.ID,
			Vehicles:          line.Vehicles,
			SecondPassVehicle: line.SecondPassVehicle,
			Directory:         dir,
			Source:            agg,
			Oracle:            newOracle(cfg, lineLogger),
			Publisher:         publisher,
			Store:             historyStore(store),
			PlannedInterval:   cfg.PlannedInterval,
			ReactiveTimeout:   cfg.ReactiveTimeout,
			DeferDelay:        cfg.DeferDelay,
			QueueCapacity:     cfg.EventQueueCapacity,
			HistoryLimit:      cfg.HistoryLimit,
			MaxOrdersPerCycle: cfg.MaxOrdersPerCycle,
			Logger:            logger,
		})
		commanders = append(commanders, c)

		topology := mq.LineTopology{Root: cfg.TopicRoot, LineID: line.ID}
		topologies = append(topologies, topology)
		consumers = append(consumers, mq.NewConsumer(conn, lineLogger, mq.ConsumerConfig{
			Topology: topology,
			Handler: func(_ context.Context, d *mq.Delivery) error {
				return agg.Ingest(d.Topic, d.Body)
			},
		}))
	}
	logger.Debug("bus topology", "info", mq.TopologyInfo(topologies))

	fleet, err := commander.NewFleet(logger, commanders...)
	if err != nil {
		logger.Error("failed to create fleet", "error", err)
		os.Exit(1)
	}
	if err := fleet.Start(ctx); err != nil {
		logger.Error("failed to start fleet", "error", err)
		os.Exit(1)
	}

	// Consumers
	var wg sync.WaitGroup
	for _, consumer := range consumers {
		wg.Add(1)
		go func(consumer *mq.Consumer) {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped", "error", err)
				cancel()
			}
		}(consumer)
	}

	// Sweeper
	sweeper, err := scheduler.New(scheduler.Config{
		Directory: dir,
		Schedule:  cfg.SweepSchedule,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("invalid sweep schedule", "error", err)
		os.Exit(1)
	}
	sweeper.Start()

	// HTTP: API + /healthz + /metrics
	apiCfg := api.Config{
		Directory: dir,
		Fleet:     fleet,
		Submitter: publisher,
		Logger:    logger,
	}
	if store != nil {
		apiCfg.Store = store
	}
	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "bus disconnected")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	sweeper.Stop()
	for _, consumer := range consumers {
		consumer.Stop()
	}
	wg.Wait()
	fleet.Stop()

	logger.Info("factoria-commander stopped")
}

// newOracle создаёт оракул линии. У каждой линии свой LLM и свой Guard.
func newOracle(cfg config.Config, logger *slog.Logger) oracle.Oracle {
	if cfg.Oracle == config.OracleLLM {
		return oracle.NewLLM(oracle.LLMConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			APIKey:  cfg.LLM.APIKey,
			Timeout: cfg.LLM.Timeout,
			Logger:  logger,
		})
	}
	return oracle.NewRules(oracle.RulesConfig{})
}

// historyStore не даёт nil *CommandRepo превратиться в непустой интерфейс.
func historyStore(store *repo.CommandRepo) commander.HistoryStore {
	if store == nil {
		return nil
	}
	return store
}
