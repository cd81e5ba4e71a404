// Package cli реализует инструмент командной строки Factoria.
//
// CLI работает через HTTP API командира и не импортирует внутренние
// пакеты: типы ответов продублированы в client.go.
//
//	client := cli.NewClient("http://localhost:8080")
//	orders, err := client.ListOrders("in_progress")
//
// Вывод по умолчанию в таблицах (text/tabwriter), с флагом --json в JSON.
// Данные идут в stdout, сообщения Success/Error в stderr:
//
//	factoria orders list --json | jq .
//
// Группы команд:
//   - orders: list, show, submit, cancel
//   - lines: list, snapshot, history
//   - stats
//
// Фабрики (NewOrderCmd и т.д.) принимают clientFn и outputFn, чтобы
// Client и Output создавались после разбора PersistentFlags.
package cli
