// Package cli реализует инструмент командной строки Forge.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Forge API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления pipelines, задачами, каталогом,
// расписаниями и заметками об исправлениях отказов.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Forge API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (dataResponse, listResponse, errorResponse)
// и обработку ошибок. Дополнительно умеет читать SSE-стрим
// событий pipeline (StreamEvents).
//
//	client := cli.NewClient("http://localhost:8080")
//	pipelines, err := client.ListPipelines("RUNNING", 50)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: forge pipeline list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - pipeline: submit, list, show, cancel, tasks, events, watch
//   - task: submit, show
//   - catalog: list, show
//   - schedule: list, create, show, enable, disable
//   - learning: note, notes, hint
//
// Каждая группа создаётся через фабричную функцию (NewPipelineCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
