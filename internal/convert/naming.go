package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	ContainerExt = ".webp"
	FallbackName = "converted"
)

// SanitizeBaseName keeps letters, digits, spaces, hyphens and underscores of the file stem.
func SanitizeBaseName(sourcePath string) string {
	base := path.Base(strings.ReplaceAll(sourcePath, `\`, "/"))
	// Leading dots belong to the stem, so ".mp4" keeps "mp4".
	stem := strings.TrimSuffix(base, filepath.Ext(strings.TrimLeft(base, ".")))

	var b strings.Builder
	for _, r := range stem {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	name := strings.TrimRight(b.String(), " ")
	if strings.TrimSpace(name) == "" {
		return FallbackName
	}
	return name
}

// ResolveOutputPath returns the first free name.webp, name_1.webp, ... inside dir.
func ResolveOutputPath(dir, sourcePath string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("output directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path is not a directory: %s", dir)
	}

	name := SanitizeBaseName(sourcePath)
	candidate := filepath.Join(dir, name+ContainerExt)
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("check output path %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, n, ContainerExt))
	}
}
