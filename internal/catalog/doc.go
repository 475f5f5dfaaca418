// Package catalog содержит реестр определений задач.
//
// Каталог — чистая lookup-структура без состояния выполнения:
//   - catalog.go — Register / Lookup / List с фильтром по категории
//   - schema.go  — явная проверка значений по схемам input/output,
//     включая проверку формы идентификаторов артефактов
//
// Каталог заполняется при старте процесса явной регистрацией —
// без side effects на импорт.
package catalog
