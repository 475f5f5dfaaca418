// Package learning реализует накопление знаний об отказах задач.
//
// Отказы группируются по сигнатуре (вид задачи, категория ошибки).
// Для каждой сигнатуры ведётся счётчик наблюдений и append-only история
// заметок об исправлениях; при повторении известной сигнатуры последняя
// заметка прикладывается к событию отказа как подсказка.
package learning
