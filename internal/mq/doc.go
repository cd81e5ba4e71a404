// Package mq предоставляет транспорт фабричной шины поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, ограниченный первый dial)
//   - topology.go   — topic exchange, очереди линий, отображение топиков
//   - publisher.go  — публикация команд и заказов
//   - consumer.go   — доставка сообщений линии в обработчик
//
// Топики шины имеют вид {root}/{line}/station/{id}/status. В RabbitMQ
// им соответствует topic exchange с именем {root} и routing key, где
// "/" заменён на ".", а одноуровневый "+" на "*":
//
//	AgenticFactoria/line1/agv/+/status → AgenticFactoria.line1.agv.*.status
//
// Очереди:
//   - {root}.{line}.commander — все топики, которые слушает линия
package mq
