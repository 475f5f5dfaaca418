package tasks

import (
	"context"
	"fmt"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/domain"
)

// LoadDataset резолвит путь или имя датасета в идентификатор,
// который дальше течёт по input_mappings в isolated-задачи.
func LoadDataset() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "load_dataset",
		Description: "Load a dataset by path or hub name and return its artifact identifier",
		Category:    domain.CategoryLightweight,
		InputSchema: domain.Schema{
			"dataset_path": {Type: domain.FieldString, Required: true, Description: "Local path or hub dataset name"},
			"split":        {Type: domain.FieldString, Description: "Dataset split (train/validation/test)"},
		},
		OutputSchema: domain.Schema{
			"dataset_id":   {Type: domain.FieldArtifact, Required: true},
			"dataset_path": {Type: domain.FieldString, Required: true},
			"num_samples":  {Type: domain.FieldNumber},
		},
		Idempotent: true,
		TimeoutSec: 60,
		Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			path, _ := inputs["dataset_path"].(string)
			return map[string]any{
				"dataset_id":   newArtifactID("dataset"),
				"dataset_path": path,
				"num_samples":  1000,
			}, nil
		}),
	}
}

// LoadConfig загружает конфигурацию обучения и выдаёт её идентификатор.
func LoadConfig() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "load_config",
		Description: "Load a training configuration and return its artifact identifier",
		Category:    domain.CategoryLightweight,
		InputSchema: domain.Schema{
			"config_path": {Type: domain.FieldString, Description: "Path to a config file"},
			"config_dict": {Type: domain.FieldObject, Description: "Inline configuration object"},
		},
		OutputSchema: domain.Schema{
			"config_id": {Type: domain.FieldArtifact, Required: true},
			"config":    {Type: domain.FieldObject, Required: true},
		},
		Idempotent: true,
		TimeoutSec: 30,
		Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			config, ok := inputs["config_dict"].(map[string]any)
			if !ok {
				path, hasPath := inputs["config_path"].(string)
				if !hasPath || path == "" {
					return nil, fmt.Errorf("either config_path or config_dict is required")
				}
				config = map[string]any{"source": path}
			}
			return map[string]any{
				"config_id": newArtifactID("config"),
				"config":    config,
			}, nil
		}),
	}
}

// LoadLoRA загружает LoRA-адаптер и выдаёт его идентификатор.
func LoadLoRA() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "load_lora",
		Description: "Load a LoRA adapter and return its artifact identifier",
		Category:    domain.CategoryLightweight,
		InputSchema: domain.Schema{
			"lora_path":  {Type: domain.FieldString, Required: true, Description: "Path to the adapter"},
			"base_model": {Type: domain.FieldString, Description: "Base model the adapter targets"},
		},
		OutputSchema: domain.Schema{
			"lora_id":   {Type: domain.FieldArtifact, Required: true},
			"lora_path": {Type: domain.FieldString},
		},
		Idempotent: true,
		TimeoutSec: 60,
		Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			path, _ := inputs["lora_path"].(string)
			return map[string]any{
				"lora_id":   newArtifactID("lora"),
				"lora_path": path,
			}, nil
		}),
	}
}

// ArtifactCheck проверяет корректность ссылки на артефакт.
// Полезен как guard-узел перед тяжёлой isolated-работой.
func ArtifactCheck() domain.TaskDefinition {
	return domain.TaskDefinition{
		Kind:        "artifact_check",
		Description: "Verify that an artifact reference is well-formed",
		Category:    domain.CategoryLightweight,
		InputSchema: domain.Schema{
			"artifact_id": {Type: domain.FieldString, Required: true},
		},
		OutputSchema: domain.Schema{
			"artifact_id": {Type: domain.FieldArtifact, Required: true},
			"valid":       {Type: domain.FieldBoolean, Required: true},
		},
		Idempotent: true,
		TimeoutSec: 10,
		Handler: domain.ExecutableFunc(func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			ref, _ := inputs["artifact_id"].(string)
			if !catalog.ValidArtifactRef(ref) {
				return nil, fmt.Errorf("malformed artifact reference %q", ref)
			}
			return map[string]any{
				"artifact_id": ref,
				"valid":       true,
			}, nil
		}),
	}
}
