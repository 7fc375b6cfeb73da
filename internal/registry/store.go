package registry

import (
	"encoding/json"
	"os"
)

// readJSON loads a JSON document into v. Missing or corrupt files are treated
// as empty: registry durability is best-effort, never fatal.
func readJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
