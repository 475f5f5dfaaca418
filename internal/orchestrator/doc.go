// Package orchestrator — ядро выполнения pipeline.
//
// Orchestrator принимает граф задач, создаёт персистентные экземпляры
// и ведёт граф до терминального состояния: диспетчеризует готовые узлы
// с учётом лимита параллелизма, перекладывает outputs upstream-узлов
// во входы зависимых, выполняет retry с backoff, каскадно помечает
// зависимые узлы при отказе и публикует события жизненного цикла
// в упорядоченный поток.
//
// Все переходы состояний проходят через store.Transition с проверкой
// исходного состояния, поэтому конкурирующие оркестраторы (или рестарт
// посреди выполнения) не могут дважды выполнить один узел. После рестарта
// Start восстанавливает активные pipelines из persistent-состояния:
// прерванные узлы уходят в retry (если задача идемпотентна и бюджет
// попыток не исчерпан) либо помечаются InterruptedExecution.
package orchestrator
