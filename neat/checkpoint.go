package neat

import (
	"compress/gzip"
	"fmt"
	"os"
)

// SaveCheckpoint writes the engine state to a gzip-compressed text file.
// The configuration is not saved; it is supplied again on load.
func (e *Engine) SaveCheckpoint(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	ser := NewTextSerializer(gzWriter)
	e.Serialize(ser)
	if err := ser.Flush(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish checkpoint compression: %w", err)
	}

	e.logger.Info("checkpoint saved", "path", filePath, "generation", e.generation)
	return nil
}

// LoadCheckpoint creates an engine for config and restores the state saved in
// checkpointPath. The random generator is seeded afresh from config or opts.
func LoadCheckpoint(checkpointPath string, config *Config, opts ...Option) (*Engine, error) {
	e, err := NewEngine(config, opts...)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	if err := e.Deserialize(NewTextDeserializer(gzReader)); err != nil {
		return nil, fmt.Errorf("failed to restore checkpoint '%s': %w", checkpointPath, err)
	}

	e.logger.Info("checkpoint loaded", "path", checkpointPath, "generation", e.generation)
	return e, nil
}
