package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/store"
)

func publish(t *testing.T, s *Stream, pipelineID uuid.UUID, kind domain.EventKind) domain.EventRecord {
	t.Helper()
	ev := domain.EventRecord{PipelineID: pipelineID, Kind: kind}
	if err := s.Publish(context.Background(), &ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	return ev
}

func recvEvent(t *testing.T, ch <-chan domain.EventRecord) domain.EventRecord {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return domain.EventRecord{}
}

func TestStream_ReplayThenLive(t *testing.T) {
	s := NewStream(store.NewMemory())
	pipelineID := uuid.New()

	// Два события до подписки
	publish(t, s, pipelineID, domain.EventPipelineStarted)
	publish(t, s, pipelineID, domain.EventNodeStarted)

	ch, cancel, err := s.Subscribe(context.Background(), pipelineID, 0)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	// Replay в порядке sequence
	if ev := recvEvent(t, ch); ev.Sequence != 1 || ev.Kind != domain.EventPipelineStarted {
		t.Errorf("unexpected first event: seq=%d kind=%s", ev.Sequence, ev.Kind)
	}
	if ev := recvEvent(t, ch); ev.Sequence != 2 || ev.Kind != domain.EventNodeStarted {
		t.Errorf("unexpected second event: seq=%d kind=%s", ev.Sequence, ev.Kind)
	}

	// Живое событие после подписки
	publish(t, s, pipelineID, domain.EventNodeCompleted)
	if ev := recvEvent(t, ch); ev.Sequence != 3 || ev.Kind != domain.EventNodeCompleted {
		t.Errorf("unexpected live event: seq=%d kind=%s", ev.Sequence, ev.Kind)
	}
}

func TestStream_SubscribeFromCursor(t *testing.T) {
	s := NewStream(store.NewMemory())
	pipelineID := uuid.New()

	for i := 0; i < 4; i++ {
		publish(t, s, pipelineID, domain.EventNodeStarted)
	}

	// Возобновление после sequence 2
	ch, cancel, err := s.Subscribe(context.Background(), pipelineID, 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	if ev := recvEvent(t, ch); ev.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", ev.Sequence)
	}
	if ev := recvEvent(t, ch); ev.Sequence != 4 {
		t.Errorf("expected sequence 4, got %d", ev.Sequence)
	}
}

func TestStream_TerminalClosesSubscribers(t *testing.T) {
	s := NewStream(store.NewMemory())
	pipelineID := uuid.New()

	ch, cancel, err := s.Subscribe(context.Background(), pipelineID, 0)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	publish(t, s, pipelineID, domain.EventPipelineStarted)
	publish(t, s, pipelineID, domain.EventPipelineCompleted)

	recvEvent(t, ch) // started
	ev := recvEvent(t, ch)
	if ev.Kind != domain.EventPipelineCompleted {
		t.Fatalf("expected terminal event, got %s", ev.Kind)
	}

	// Канал закрыт после терминального события
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for channel close")
	}
}

func TestStream_SubscribeAfterTerminal(t *testing.T) {
	s := NewStream(store.NewMemory())
	pipelineID := uuid.New()

	publish(t, s, pipelineID, domain.EventPipelineStarted)
	publish(t, s, pipelineID, domain.EventPipelineFailed)

	// Поздний подписчик получает полный replay и закрытый канал
	ch, cancel, err := s.Subscribe(context.Background(), pipelineID, 0)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	if ev := recvEvent(t, ch); ev.Kind != domain.EventPipelineStarted {
		t.Errorf("expected pipeline.started, got %s", ev.Kind)
	}
	if ev := recvEvent(t, ch); ev.Kind != domain.EventPipelineFailed {
		t.Errorf("expected pipeline.failed, got %s", ev.Kind)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after terminal replay")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for channel close")
	}
}

func TestStream_IndependentPipelines(t *testing.T) {
	s := NewStream(store.NewMemory())
	first := uuid.New()
	second := uuid.New()

	ch, cancel, err := s.Subscribe(context.Background(), first, 0)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	// События чужого pipeline не протекают в подписку
	publish(t, s, second, domain.EventPipelineStarted)
	publish(t, s, first, domain.EventPipelineStarted)

	ev := recvEvent(t, ch)
	if ev.PipelineID != first {
		t.Errorf("received event for wrong pipeline: %s", ev.PipelineID)
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStream_CancelUnsubscribes(t *testing.T) {
	s := NewStream(store.NewMemory())
	pipelineID := uuid.New()

	ch, cancel, err := s.Subscribe(context.Background(), pipelineID, 0)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()

	// После отмены канал закрыт, публикация не паникует
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}
	publish(t, s, pipelineID, domain.EventPipelineStarted)

	// Повторная отмена безопасна
	cancel()
}
