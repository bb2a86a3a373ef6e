package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafePath joins filename onto baseDir and refuses results that escape baseDir.
func SafePath(baseDir, filename string) (string, error) {
	if err := ValidateFilePath(filename); err != nil {
		return "", err
	}

	fullPath := filepath.Join(baseDir, filepath.Clean(filename))

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base directory: %w", err)
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside base directory not allowed")
	}

	return fullPath, nil
}

// ValidateFilePath rejects paths containing traversal segments.
func ValidateFilePath(filePath string) error {
	for _, segment := range strings.Split(filepath.ToSlash(filepath.Clean(filePath)), "/") {
		if segment == ".." {
			return fmt.Errorf("invalid file path: path traversal not allowed")
		}
	}
	return nil
}
