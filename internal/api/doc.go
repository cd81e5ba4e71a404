// Package api содержит HTTP API командира линий.
//
// Структура:
//   - handler.go       — Handler с DI (каталог заказов, линии, хранилище истории)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - order_handler.go — обработчики для /orders и /stats
//   - line_handler.go  — обработчики для /lines
//
// API только читает состояние и принимает заказы. Команды AGV через API
// не отправляются.
package api
