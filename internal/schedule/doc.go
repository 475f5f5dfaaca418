// Package schedule — периодическая подача pipelines по расписанию.
//
// Scheduler тикает с фиксированным периодом, находит расписания
// с истекшим next_due_at и подаёт pipeline из шаблона каждого
// через Submitter (оркестратор). Поддерживаются cron-выражения
// (5 полей, с timezone) и фиксированные интервалы.
//
// Scheduler не реализует leader election: при нескольких экземплярах
// оркестратора тикает только лидер (pg advisory lock на уровне main).
package schedule
