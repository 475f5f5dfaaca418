// Package dispatch выполняет экземпляры задач с учётом категории изоляции.
//
// LIGHTWEIGHT задачи выполняются в процессе оркестратора с перехватом
// паник; ISOLATED — передаются в отдельную среду выполнения через
// интерфейс Runtime. Ошибки классифицируются по категориям из domain:
// логика задачи, инфраструктура изоляции, таймаут, прерывание.
package dispatch
