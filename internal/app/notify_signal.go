package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TouchNotifySignal stamps the signal file with a fresh revision after every
// state save. The notifier watches this file and compares revisions, so a
// write here is what turns a completed Run into a push to connected agents.
// An empty path disables signaling.
func TouchNotifySignal(signalPath string) error {
	if signalPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(signalPath), 0755); err != nil {
		return fmt.Errorf("create signal file dir: %w", err)
	}
	rev := strconv.FormatInt(time.Now().UnixNano(), 10)
	return os.WriteFile(signalPath, []byte(rev), 0644)
}
