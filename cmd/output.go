package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func outputJSON(data any) error {
	return writeJSON(os.Stdout, data)
}

func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
