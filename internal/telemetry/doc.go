// Package telemetry обеспечивает наблюдаемость координатора.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Все компоненты используют единый формат логирования,
// метрики экспортируются на /metrics endpoint factoria-commander.
package telemetry
