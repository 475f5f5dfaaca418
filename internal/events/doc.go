// Package events реализует поток событий pipeline: durable журнал
// с монотонной нумерацией плюс живая раздача подписчикам.
//
// Контракт для внешних наблюдателей: события одного pipeline приходят
// строго в порядке Sequence, переподключение с последнего полученного
// номера возобновляет поток без пропусков, терминальное событие
// закрывает канал подписки.
package events
