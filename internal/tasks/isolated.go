package tasks

import (
	"context"

	"github.com/shaiso/Forge/internal/domain"
)

// Finetune дообучает базовую модель на датасете. Выполняется
// в runner'е; здесь обработчик моделирует работу и выдаёт
// идентификатор полученной модели с метриками обучения.
func Finetune() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "finetune",
		Description: "Finetune a base model on a dataset and return the model artifact",
		Category:    domain.CategoryIsolated,
		InputSchema: domain.Schema{
			"model_name": {Type: domain.FieldString, Required: true, Description: "Base model to finetune"},
			"dataset_id": {Type: domain.FieldArtifact, Required: true},
			"config_id":  {Type: domain.FieldArtifact, Required: true},
			"lora_id":    {Type: domain.FieldArtifact, Description: "Optional adapter to start from"},
			"epochs":     {Type: domain.FieldNumber},
		},
		OutputSchema: domain.Schema{
			"model_id":   {Type: domain.FieldArtifact, Required: true},
			"model_path": {Type: domain.FieldString, Required: true},
			"metrics":    {Type: domain.FieldObject},
		},
		Retry: domain.RetryPolicy{
			MaxAttempts:    3,
			Backoff:        "exponential",
			InitialDelayMs: 5000,
			MaxDelayMs:     60000,
		},
		Idempotent: true,
		TimeoutSec: 6 * 3600,
		Handler: domain.ExecutableFunc(func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			modelID := newArtifactID("model")
			return map[string]any{
				"model_id":   modelID,
				"model_path": "/artifacts/models/" + modelID,
				"metrics": map[string]any{
					"final_loss": 0.42,
					"accuracy":   0.89,
				},
			}, nil
		}),
	}
}

// PTQ выполняет post-training quantization модели.
func PTQ() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "ptq",
		Description: "Post-training quantization of a model artifact",
		Category:    domain.CategoryIsolated,
		InputSchema: domain.Schema{
			"model_id":               {Type: domain.FieldArtifact, Required: true},
			"bits":                   {Type: domain.FieldNumber},
			"calibration_dataset_id": {Type: domain.FieldArtifact},
		},
		OutputSchema: domain.Schema{
			"quantized_model_id":   {Type: domain.FieldArtifact, Required: true},
			"quantized_model_path": {Type: domain.FieldString},
		},
		Retry: domain.RetryPolicy{
			MaxAttempts:    2,
			Backoff:        "fixed",
			InitialDelayMs: 10000,
		},
		Idempotent: true,
		TimeoutSec: 3600,
		Handler: domain.ExecutableFunc(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			quantizedID := newArtifactID("quantized")
			return map[string]any{
				"quantized_model_id":   quantizedID,
				"quantized_model_path": "/artifacts/models/" + quantizedID,
			}, nil
		}),
	}
}

// Evaluate прогоняет модель по датасету и возвращает метрики.
func Evaluate() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "evaluate",
		Description: "Evaluate a model on a dataset and return metrics",
		Category:    domain.CategoryIsolated,
		InputSchema: domain.Schema{
			"model_id":   {Type: domain.FieldArtifact, Required: true},
			"dataset_id": {Type: domain.FieldArtifact, Required: true},
		},
		OutputSchema: domain.Schema{
			"metrics":     {Type: domain.FieldObject, Required: true},
			"report_path": {Type: domain.FieldString},
		},
		Retry: domain.RetryPolicy{
			MaxAttempts:    3,
			Backoff:        "exponential",
			InitialDelayMs: 2000,
			MaxDelayMs:     30000,
		},
		Idempotent: true,
		TimeoutSec: 1800,
		Handler: domain.ExecutableFunc(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			reportID := newArtifactID("report")
			return map[string]any{
				"metrics": map[string]any{
					"accuracy": 0.92,
					"f1_score": 0.90,
					"loss":     0.35,
				},
				"report_path": "/artifacts/reports/" + reportID + ".json",
			}, nil
		}),
	}
}
