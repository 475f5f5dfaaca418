// Package runner — процесс выполнения ISOLATED задач.
//
// Оркестратор публикует task.dispatch в очередь tasks.isolated;
// runner выполняет обработчик из собственного каталога и отвечает
// task.result в tasks.results. Крах runner'а посреди задачи не теряет
// её: неподтверждённое сообщение вернётся в очередь, а застрявшие
// RUNNING задачи разберёт recovery оркестратора.
package runner
