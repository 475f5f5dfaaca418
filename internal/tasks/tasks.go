package tasks

import (
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/domain"
)

// RegisterBuiltins регистрирует все встроенные виды задач.
// Вызывается один раз при старте процесса.
func RegisterBuiltins(c *catalog.Catalog) error {
	defs := []domain.TaskDefinition{
		LoadDataset(),
		LoadConfig(),
		LoadLoRA(),
		ArtifactCheck(),
		Finetune(),
		PTQ(),
		Evaluate(),
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// newArtifactID выдаёт идентификатор артефакта вида "prefix_9f2c41ab03de".
func newArtifactID(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + hex[:12]
}
