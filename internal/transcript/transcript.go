// Package transcript reads battle log exports from disk.
package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"battlescribe/internal/battle"
)

// ErrEmpty is returned for files with no log text.
var ErrEmpty = errors.New("transcript is empty")

// Extensions recognised as battle log exports.
var Extensions = []string{".txt", ".log"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads path as a RawTranscript. A UTF-8 BOM is dropped and CRLF line
// endings become LF.
func Load(path string) (battle.RawTranscript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse normalises raw log bytes.
func Parse(data []byte) (battle.RawTranscript, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmpty
	}
	return battle.RawTranscript(data), nil
}

// IsTranscript reports whether path looks like a battle log export.
func IsTranscript(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
