// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - runtime.go    — транспорт до изолированной среды выполнения (RPC поверх очередей)
//
// Типы сообщений:
//   - pipeline.submitted — pipeline принят и ожидает оркестрации
//   - pipeline.cancel    — запрос на отмену pipeline (та же очередь, что и submitted)
//   - task.dispatch      — изолированная задача отправлена runner'у
//   - task.result        — runner вернул результат изолированной задачи
//
// Exchanges:
//   - forge.pipelines — события pipelines
//   - forge.tasks     — диспетчеризация изолированных задач
//   - forge.dlq       — dead letter queue
package mq
