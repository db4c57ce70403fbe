package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"post-planner/infrastructure/logger"
)

// writeJSONAtomic serializes v and replaces path via a temp file in the same
// directory followed by a rename, so readers never observe a partial document.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// readJSONFile decodes path into v. A missing file leaves v untouched. A
// malformed file is moved aside and logged so the store can start empty.
func readJSONFile(path string, v interface{}) {
	lg := logger.GetLogger().WithField("path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			lg.Debug("store file not found, starting empty")
			return
		}
		lg.WithField("error", err).Error("failed reading store file, starting empty")
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UTC().Unix())
		if renameErr := os.Rename(path, aside); renameErr != nil {
			lg.WithField("error", renameErr).Warn("failed moving malformed store file aside")
			aside = ""
		}
		lg.WithField("error", err).WithField("movedTo", aside).Error("malformed store file, starting empty")
	}
}
