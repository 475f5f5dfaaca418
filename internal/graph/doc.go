// Package graph содержит resolver графа зависимостей pipeline.
//
// Resolver:
//   - валидирует поданный граф (ацикличность по Кану, известность видов
//     задач, корректность источников input_mappings)
//   - отвечает на запросы "какие узлы готовы" по мере завершения зависимостей
//   - вычисляет транзитивных зависимых для каскадной пометки при падении
//
// Resolver не владеет персистентным состоянием и полностью восстановим
// из графа и состояний узлов в State Store.
package graph
