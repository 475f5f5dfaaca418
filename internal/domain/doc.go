// Package domain содержит типы предметной области Forge.
//
// Основные сущности:
//   - TaskDefinition — неизменяемое определение вида задачи (схемы, категория, retry)
//   - TaskInstance   — экземпляр выполнения задачи с машиной состояний
//   - PipelineGraph  — поданный DAG узлов с input_mappings
//   - PipelineInstance — запись о выполнении pipeline
//   - EventRecord    — событие потока pipeline с монотонным sequence
//   - FailureSignature / RemediationNote — индекс заметок об исправлениях
//
// Типы не содержат логики выполнения — только данные и переходы состояний.
package domain
