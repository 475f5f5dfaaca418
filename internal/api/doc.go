// Package api — HTTP-интерфейс оркестрации.
//
// API-процесс не выполняет pipelines: он валидирует граф, создаёт
// персистентные записи в состоянии PENDING и уведомляет оркестратор
// через RabbitMQ (с poll-циклом оркестратора как страховкой).
// Чтение статусов и событий идёт напрямую из Store, поэтому API
// работает с pipeline'ами любого процесса-оркестратора.
//
// Структура:
//   - handler.go          — Handler и его зависимости
//   - routes.go           — маршруты
//   - middleware.go       — Chain, Recovery, Logging (+HTTP-метрики)
//   - response.go         — формат ответов и маппинг ошибок
//   - dto.go              — форматы запросов/ответов
//   - pipeline_handler.go — подача, статус, отмена, задачи pipeline
//   - events_handler.go   — чтение и SSE-стрим потока событий
//   - catalog_handler.go  — каталог видов задач, standalone-задачи
//   - schedule_handler.go — расписания
//   - learning_handler.go — заметки об исправлениях отказов
package api
