package learning

import (
	"context"
	"testing"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/store"
)

func TestNormalizeMessage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"task 2b1e7a30-9cfe-4d11-8a45-ced1a1b2c3d4 not found",
			"task <uuid> not found",
		},
		{
			"cannot open /data/models/checkpoint.bin",
			"cannot open <path>",
		},
		{
			"parse error at line 42",
			"parse error at line <num>",
		},
		{
			"plain message without dynamic parts",
			"plain message without dynamic parts",
		},
	}

	for _, tc := range cases {
		if got := NormalizeMessage(tc.in); got != tc.want {
			t.Errorf("NormalizeMessage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLearner_ObserveCountsOccurrences(t *testing.T) {
	ctx := context.Background()
	learner := NewLearner(store.NewMemory())

	execErr := &domain.ExecError{Category: domain.ErrTimeout, Message: "deadline exceeded"}

	for i := 1; i <= 3; i++ {
		advice, err := learner.Observe(ctx, "finetune", execErr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if advice.Occurrences != i {
			t.Errorf("expected %d occurrences, got %d", i, advice.Occurrences)
		}
		if advice.Hint != "" {
			t.Errorf("expected no hint without notes, got %q", advice.Hint)
		}
	}
}

func TestLearner_ObserveReturnsLatestNote(t *testing.T) {
	ctx := context.Background()
	learner := NewLearner(store.NewMemory())

	sig := domain.FailureSignature{Kind: "ptq", Category: domain.ErrTaskLogic}
	if err := learner.AddNote(ctx, sig, "reduce calibration batch size"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := learner.AddNote(ctx, sig, "use fp16 calibration dataset"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	execErr := &domain.ExecError{Category: domain.ErrTaskLogic, Message: "quantization failed"}
	advice, err := learner.Observe(ctx, "ptq", execErr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if advice.Hint != "use fp16 calibration dataset" {
		t.Errorf("expected latest note as hint, got %q", advice.Hint)
	}
}

func TestLearner_SignaturesAreIndependent(t *testing.T) {
	ctx := context.Background()
	learner := NewLearner(store.NewMemory())

	sig := domain.FailureSignature{Kind: "finetune", Category: domain.ErrTimeout}
	if err := learner.AddNote(ctx, sig, "increase timeout for large models"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Другая категория того же kind — подсказки нет
	execErr := &domain.ExecError{Category: domain.ErrTaskLogic, Message: "bad config"}
	advice, err := learner.Observe(ctx, "finetune", execErr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if advice.Hint != "" {
		t.Errorf("hint leaked across categories: %q", advice.Hint)
	}
}

func TestLearner_AddNoteKeepsTextVerbatim(t *testing.T) {
	ctx := context.Background()
	learner := NewLearner(store.NewMemory())

	// Пути и идентификаторы в инструкции по исправлению значимы —
	// нормализация сообщений об ошибках к заметкам не применяется.
	sig := domain.FailureSignature{Kind: "load_dataset", Category: domain.ErrTaskLogic}
	text := "re-upload /data/datasets/train.jsonl before retry"
	if err := learner.AddNote(ctx, sig, text); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hint, err := learner.Suggest(ctx, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hint != text {
		t.Errorf("expected verbatim note, got %q", hint)
	}
}

func TestLearner_History(t *testing.T) {
	ctx := context.Background()
	learner := NewLearner(store.NewMemory())

	sig := domain.FailureSignature{Kind: "evaluate", Category: domain.ErrIsolation}
	notes := []string{"restart runner", "check rabbitmq connectivity"}
	for _, n := range notes {
		if err := learner.AddNote(ctx, sig, n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := learner.History(ctx, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(history))
	}
	if history[0].Note != notes[0] || history[1].Note != notes[1] {
		t.Errorf("history out of order: %+v", history)
	}
}
