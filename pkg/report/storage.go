package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexFile is the name of the report index inside a report directory.
const IndexFile = "report.json"

func indexPath(outputDir string) string {
	return filepath.Join(outputDir, IndexFile)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// atomicWriteJSON writes v to a temp file in the target directory and
// renames it over path, so pollers never read a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadIndex loads report.json from a report directory.
func ReadIndex(reportDir string) (*Index, error) {
	data, err := os.ReadFile(indexPath(reportDir))
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFile, err)
	}
	return &index, nil
}
