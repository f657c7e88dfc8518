package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	MaxTitleLength = 120
	DefaultTitle   = "hookforge_export"
)

var ErrInvalidOutputDir = errors.New("invalid output_dir")

// SanitizeName drops control characters, replaces anything outside letters,
// digits and " -_.,()" with '_', trims, and cuts to maxLen runes.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s))

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = strings.TrimSpace(string(runes[:maxLen]))
	}
	return cleaned
}

// Title sanitizes an export title, falling back to DefaultTitle.
func Title(s string) string {
	if t := SanitizeName(s, MaxTitleLength); t != "" {
		return t
	}
	return DefaultTitle
}

// FileBase turns a sanitized title into a file name without spaces.
func FileBase(title string) string {
	return strings.ReplaceAll(Title(title), " ", "_")
}

// ValidateOutputDir accepts only clean, traversal-free paths to existing
// directories.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: output_dir is required", ErrInvalidOutputDir)
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("%w: path traversal is not allowed", ErrInvalidOutputDir)
		}
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("%w: path must be clean", ErrInvalidOutputDir)
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: directory does not exist", ErrInvalidOutputDir)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	case !info.IsDir():
		return fmt.Errorf("%w: not a directory", ErrInvalidOutputDir)
	}
	return nil
}
