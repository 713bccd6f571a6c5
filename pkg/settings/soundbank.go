// Package settings locates the SoundFont sound bank and reads the TOML
// configuration file.
package settings

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zurustar/drumpractice/pkg/fileutil"
)

// ErrConfig marks configuration the player cannot start without.
var ErrConfig = errors.New("configuration error")

// DefaultSettingsFile is the sound-bank settings file looked up in the
// working directory.
const DefaultSettingsFile = "settings.txt"

// soundBankKeys are the keys that name the sound bank, compared after
// trimming and lower-casing.
var soundBankKeys = map[string]bool{
	"soundfont":      true,
	"soundfont_path": true,
	"soundfont path": true,
}

// ParseSoundBankPath extracts the sound-bank path from settings text.
//
// Blank lines and lines starting with '#' are ignored. A "key = value"
// line sets the path when key is one of soundfont, soundfont_path or
// "soundfont path"; other keys are ignored. A line without '=' is a path
// by itself. The last match wins. It returns "" if nothing matched.
func ParseSoundBankPath(text string) string {
	var path string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok {
			if soundBankKeys[strings.ToLower(strings.TrimSpace(key))] {
				path = strings.TrimSpace(value)
			}
			continue
		}
		path = line
	}
	return path
}

// LoadSoundBankPath reads the settings file at path and returns the sound
// bank it names. Relative sound-bank paths are taken relative to the
// settings file. Every failure wraps ErrConfig.
func LoadSoundBankPath(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found with SoundFont path", ErrConfig, path)
		}
		return "", fmt.Errorf("%w: failed to read %s: %v", ErrConfig, path, err)
	}

	bank := ParseSoundBankPath(string(data))
	if bank == "" {
		return "", fmt.Errorf("%w: no soundfont path found in %s", ErrConfig, path)
	}

	bank = fileutil.ExpandHome(bank)
	if !filepath.IsAbs(bank) {
		bank = filepath.Join(filepath.Dir(path), bank)
	}

	actual, err := fileutil.Resolve(bank)
	if err != nil {
		return "", fmt.Errorf("%w: the specified soundfont does not exist: %s", ErrConfig, bank)
	}
	return actual, nil
}
