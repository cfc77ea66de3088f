// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - event.inbound   — событие от внешнего producer'а
//   - task.completed  — задача достигла финального статуса
//
// Exchanges:
//   - conveyor.events — входящие события
//   - conveyor.tasks  — уведомления о задачах
//   - conveyor.dlq    — dead letter queue
//
// RabbitMQ опционален: без него события принимаются через HTTP API,
// а уведомления о завершении не публикуются.
package mq
