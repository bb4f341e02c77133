// Package validate provides input validation functions for URLs, paths, and other user inputs.
// All public-facing inputs should be validated before processing.
package validate

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperr "kingo/internal/errors"
	"kingo/internal/constants"
)

// MaxFilenameLength re-exports the shared filename length cap.
const MaxFilenameLength = constants.MaxFilenameLength

// DangerousPathPatterns are patterns that could indicate path traversal attacks.
var DangerousPathPatterns = []string{
	"..",
	"~",
	"$",
	"%",
}

// filenameUnsafeChars matches characters not allowed in filenames.
var filenameUnsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// URL validates a URL and returns the parsed URL or an error.
func URL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, apperr.NewWithMessage("validate.URL", apperr.ErrInvalidURL, "URL não pode estar vazia")
	}

	// Trim whitespace
	rawURL = strings.TrimSpace(rawURL)

	// Check for valid HTTP(S) scheme
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, apperr.NewWithMessage("validate.URL", apperr.ErrInvalidURL, "URL deve começar com http:// ou https://")
	}

	// Parse URL
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperr.NewWithMessage("validate.URL", apperr.ErrInvalidURL, "URL inválida")
	}

	// Validate host
	if parsed.Host == "" {
		return nil, apperr.NewWithMessage("validate.URL", apperr.ErrInvalidURL, "URL sem host válido")
	}

	return parsed, nil
}

// DirectoryPath validates a directory path.
// Returns the cleaned absolute path or an error.
func DirectoryPath(path string) (string, error) {
	if path == "" {
		return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.ErrInvalidURL, "caminho não pode estar vazio")
	}

	// Check for dangerous patterns (path traversal)
	for _, pattern := range DangerousPathPatterns {
		if strings.Contains(path, pattern) {
			return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.ErrPermissionDenied,
				"caminho contém caracteres não permitidos")
		}
	}

	// Clean and get absolute path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", apperr.Wrap("validate.DirectoryPath", err)
	}

	// Check if directory exists
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Directory doesn't exist, but path is valid - caller can create it
			return absPath, nil
		}
		return "", apperr.Wrap("validate.DirectoryPath", err)
	}

	// Check if it's actually a directory
	if !info.IsDir() {
		return "", apperr.NewWithMessage("validate.DirectoryPath", apperr.ErrInvalidURL, "caminho não é um diretório")
	}

	return absPath, nil
}

// Filename sanitizes a filename to be safe for the filesystem, replacing
// characters unsafe on common filesystems and truncating the stem (not the
// extension) so the total length stays within MaxFilenameLength.
func Filename(name string) string {
	if name == "" {
		return "untitled"
	}

	safe := filenameUnsafeChars.ReplaceAllString(name, "_")
	safe = strings.Trim(safe, " .")

	if len(safe) > MaxFilenameLength {
		ext := filepath.Ext(safe)
		stem := strings.TrimSuffix(safe, ext)
		stemBudget := MaxFilenameLength - len(ext)
		if stemBudget < 0 {
			stemBudget = 0
		}
		if len(stem) > stemBudget {
			stem = stem[:stemBudget]
		}
		safe = stem + ext
	}

	if safe == "" {
		return "untitled"
	}

	return safe
}

// PositiveInt ensures an integer is positive, returning a default if not.
func PositiveInt(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

// NonEmptyString returns the string or a default if empty.
func NonEmptyString(value, defaultValue string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	return value
}
