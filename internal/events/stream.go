package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/store"
)

// streamBuffer — запас канала подписки на живые события. Подписчик,
// не выбирающий события быстрее, чем заполняется буфер, отключается
// и может переподписаться с последнего полученного sequence.
const streamBuffer = 64

// Stream — шина событий pipeline поверх EventStore.
//
// Publish сначала durably записывает событие (присваивая sequence),
// и только потом раздаёт его живым подписчикам: упавший после записи
// процесс не теряет событие, подписчик получит его при replay.
type Stream struct {
	store store.EventStore

	mu   sync.Mutex
	subs map[uuid.UUID]map[*subscriber]struct{}
	done map[uuid.UUID]bool
}

type subscriber struct {
	ch chan domain.EventRecord
}

// NewStream создаёт шину поверх заданного EventStore.
func NewStream(es store.EventStore) *Stream {
	return &Stream{
		store: es,
		subs:  make(map[uuid.UUID]map[*subscriber]struct{}),
		done:  make(map[uuid.UUID]bool),
	}
}

// Publish записывает событие в журнал и раздаёт его подписчикам pipeline.
// Sequence присваивается хранилищем и доступен вызывающему после возврата.
// Терминальное событие закрывает поток: каналы подписчиков закрываются,
// новых событий для pipeline не будет.
func (s *Stream) Publish(ctx context.Context, ev *domain.EventRecord) error {
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs[ev.PipelineID] {
		select {
		case sub.ch <- *ev:
		default:
			// Медленный подписчик: отключаем, чтобы не блокировать публикацию
			delete(s.subs[ev.PipelineID], sub)
			close(sub.ch)
		}
	}

	if ev.Kind.IsTerminal() {
		s.done[ev.PipelineID] = true
		for sub := range s.subs[ev.PipelineID] {
			close(sub.ch)
		}
		delete(s.subs, ev.PipelineID)
	}
	return nil
}

// Subscribe возвращает канал событий pipeline начиная с Sequence > after.
// Сначала доставляются уже записанные события (replay), затем живые,
// без пропусков и дубликатов. Если поток уже закрыт терминальным событием,
// канал закрывается сразу после replay.
//
// Возвращённая функция отменяет подписку; вызывать её обязательно,
// если канал не был закрыт шиной.
func (s *Stream) Subscribe(ctx context.Context, pipelineID uuid.UUID, after uint64) (<-chan domain.EventRecord, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replay под мьютексом: Publish не может вклиниться между чтением
	// журнала и регистрацией подписчика, поэтому пропуск невозможен.
	replay, err := s.store.ListEvents(ctx, pipelineID, after, 0)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.EventRecord, len(replay)+streamBuffer)
	for _, ev := range replay {
		ch <- ev
	}

	if s.done[pipelineID] {
		close(ch)
		return ch, func() {}, nil
	}

	sub := &subscriber{ch: ch}
	if s.subs[pipelineID] == nil {
		s.subs[pipelineID] = make(map[*subscriber]struct{})
	}
	s.subs[pipelineID][sub] = struct{}{}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[pipelineID][sub]; ok {
			delete(s.subs[pipelineID], sub)
			close(sub.ch)
		}
	}
	return ch, cancel, nil
}
