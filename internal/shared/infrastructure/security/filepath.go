// Package security validates paths handed to the process by operators: batch files, schedule
// imports, profile files and scoring plugin binaries.
package security

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MaxDocumentBytes caps the size of a YAML or JSON document read by ReadDocument.
const MaxDocumentBytes = 8 << 20

// dangerousChars contains shell metacharacters that could be used for injection attacks.
var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r"}

// ValidateFilePath cleans path, makes it absolute and resolves symlinks. A path that does not
// exist yet is returned cleaned.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return "", fmt.Errorf("file path contains forbidden character %q: %s", char, path)
		}
	}

	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cleanPath, nil
		}
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	return resolvedPath, nil
}

// ValidateExecutablePath is ValidateFilePath for plugin binaries, which must be given as
// absolute paths so the working directory cannot change what gets executed.
func ValidateExecutablePath(path string) (string, error) {
	if path != "" && !filepath.IsAbs(path) {
		return "", fmt.Errorf("executable path must be absolute: %s", path)
	}
	return ValidateFilePath(path)
}

// ReadDocument reads a YAML or JSON document after validating its path. exts restricts the
// accepted extensions (".yaml", ".yml", ".json" when empty). Documents above MaxDocumentBytes are
// rejected.
func ReadDocument(path string, exts ...string) ([]byte, error) {
	cleanPath, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}
	if len(exts) == 0 {
		exts = []string{".yaml", ".yml", ".json"}
	}
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if !slices.Contains(exts, ext) {
		return nil, fmt.Errorf("unsupported file type %q: expected one of %s", ext, strings.Join(exts, ", "))
	}

	// #nosec G304 - path is validated above
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cleanPath, err)
	}
	if len(data) > MaxDocumentBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", cleanPath, MaxDocumentBytes)
	}
	return data, nil
}
