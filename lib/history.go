package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/5amCurfew/xtkt-target/util"
)

// AppendToHistory appends a run summary to the JSON array at path, creating the file when missing
func AppendToHistory(path string, metric ExecutionMetric) error {
	path = util.ExpandPath(path)

	var metrics []ExecutionMetric
	file, err := os.Open(path)
	switch {
	case err == nil:
		decodeErr := json.NewDecoder(file).Decode(&metrics)
		file.Close()
		if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
			return fmt.Errorf("error reading history %s: %w", path, decodeErr)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("error opening history %s: %w", path, err)
	}

	metrics = append(metrics, metric)

	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding history: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing history %s: %w", path, err)
	}
	return nil
}
