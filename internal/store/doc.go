// Package store определяет контракты долговременного хранилища Forge:
// экземпляры задач, pipelines, журнал событий, база знаний об отказах
// и расписания.
//
// Переход состояния задачи выполняется через Transition — атомарную
// условную запись: хранилище принимает рабочую копию только если
// текущее персистентное состояние входит в разрешённый набор. Гонка
// двух конкурирующих переходов разрешается в пользу первого, второй
// получает ErrInvalidTransition.
//
// Пакет содержит in-memory реализацию (Memory) для тестов и dev-режима;
// Postgres-реализация живёт в internal/repo.
package store
