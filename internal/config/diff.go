package config

import (
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffFiles returns a unified diff between two config files.
// An empty string means the files are identical.
func DiffFiles(oldPath, newPath string) (string, error) {
	oldData, err := os.ReadFile(oldPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", oldPath, err)
	}
	newData, err := os.ReadFile(newPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", newPath, err)
	}

	return Diff(string(oldData), string(newData), oldPath, newPath)
}

// Diff returns a unified diff between two config texts.
func Diff(oldText, newText, oldName, newName string) (string, error) {
	if oldText == newText {
		return "", nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: oldName,
		ToFile:   newName,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
