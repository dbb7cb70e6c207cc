// Package project reads per-project settings kept next to the code.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

const (
	// Dir is the per-project settings directory.
	Dir = ".agentcli"
	// RulesFile holds free-form instructions added to every prompt.
	RulesFile = "rules"
	// MaxRulesSize caps the rules file.
	MaxRulesSize = 16 << 10
)

// RulesPath returns where the rules for root live.
func RulesPath(root string) string {
	return filepath.Join(root, Dir, RulesFile)
}

// LoadRules reads the project rules. A missing file yields "".
func LoadRules(root string) (string, error) {
	path := RulesPath(root)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat rules file: %w", err)
	}
	if info.Size() > MaxRulesSize {
		return "", engine.Errorf(engine.KindTooLarge, "rules file %s is %d bytes (max %d)", path, info.Size(), MaxRulesSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveRules writes the project rules, creating the settings directory.
func SaveRules(root, rules string) error {
	if err := os.MkdirAll(filepath.Join(root, Dir), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}
	if err := os.WriteFile(RulesPath(root), []byte(strings.TrimSpace(rules)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}
