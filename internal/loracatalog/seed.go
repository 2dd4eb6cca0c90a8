package loracatalog

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// seedFile is the bootstrap catalog format for environments without a live
// SD engine to sync from (local development, unit tests).
type seedFile struct {
	LoRAs []seedEntry `yaml:"loras"`
}

type seedEntry struct {
	Name                 string         `yaml:"name"`
	FilePath             string         `yaml:"file_path"`
	Alias                string         `yaml:"alias"`
	Description          string         `yaml:"description"`
	TriggerWords         []string       `yaml:"trigger_words"`
	Category             string         `yaml:"category"`
	ContentType          string         `yaml:"content_type"`
	Tags                 []string       `yaml:"tags"`
	TrainingTagFrequency map[string]int `yaml:"training_tag_frequency"`
	RecommendedWeight    float64        `yaml:"recommended_weight"`
}

// LoadSeed reads a YAML bootstrap catalog from path and upserts every entry,
// the teacher's "degrade gracefully without every external dependency
// wired" philosophy applied to the LoRA catalog.
func (c *Catalog) LoadSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.Configuration, "read lora seed file", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, apperr.Wrap(apperr.Configuration, "parse lora seed file", err)
	}

	for _, e := range seed.LoRAs {
		weight := e.RecommendedWeight
		if weight == 0 {
			weight = 1.0
		}
		entry := store.LoRAEntry{
			Name:                 e.Name,
			FilePath:             e.FilePath,
			Alias:                e.Alias,
			Description:          e.Description,
			TriggerWords:         e.TriggerWords,
			Category:             e.Category,
			ContentType:          e.ContentType,
			Tags:                 e.Tags,
			TrainingTagFrequency: e.TrainingTagFrequency,
			RecommendedWeight:    weight,
		}
		if entry.ContentType == "" {
			entry.ContentType = "safe"
		}
		if err := c.store.Upsert(ctx, entry); err != nil {
			return 0, err
		}
	}
	return len(seed.LoRAs), nil
}
