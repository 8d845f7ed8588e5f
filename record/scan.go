package record

import (
	"fmt"
	"os"
	"strings"
)

// ScanFolders lists the business folders under root: immediate
// subdirectories only, hidden entries (leading dot) excluded. os.ReadDir
// returns entries sorted by name, which fixes the batch order. An empty
// result is valid; a missing root is an error so a typoed path never looks
// like a clean empty run.
func ScanFolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("record: read resources root: %w", err)
	}
	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		folders = append(folders, name)
	}
	return folders, nil
}
