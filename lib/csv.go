package lib

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/5amCurfew/xtkt-target/util"
)

// writeCSV writes header then rows to path, truncating any existing file
func writeCSV(path string, header []string, rows [][]interface{}, comma rune) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	writer.Comma = comma

	if err := writer.Write(header); err != nil {
		file.Close()
		return fmt.Errorf("error writing header to %s: %w", path, err)
	}

	fields := make([]string, 0, len(header))
	for _, row := range rows {
		fields = fields[:0]
		for _, value := range row {
			fields = append(fields, util.ToString(value))
		}
		if err := writer.Write(fields); err != nil {
			file.Close()
			return fmt.Errorf("error writing row to %s: %w", path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("error flushing %s: %w", path, err)
	}
	return file.Close()
}
