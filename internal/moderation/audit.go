package moderation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"casguard/internal/model"
)

// AuditLog appends one tab-separated line per moderation action to a file.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog creates an AuditLog writing to path. The parent directory is
// created if missing.
func NewAuditLog(path string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	return &AuditLog{path: path}, nil
}

// Append writes a single audit line.
func (a *AuditLog) Append(at time.Time, t Target, mode model.Mode, action model.ActionKind, reason string) error {
	line := fmt.Sprintf("%d\tchat=%d\tuser=%d\tname=%s\tmode=%s\taction=%s\treason=%s\n",
		at.Unix(), t.ChatID, t.AccountID, sanitize(t.DisplayName), mode, action, sanitize(reason))

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	return f.Close()
}

var fieldReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func sanitize(s string) string {
	return fieldReplacer.Replace(s)
}
