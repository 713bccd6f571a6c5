package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/zurustar/drumpractice/pkg/fileutil"
)

// ReadSoundFont reads the raw bytes of a SoundFont file. The file name is
// matched case-insensitively.
func ReadSoundFont(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}

	actual, err := fileutil.Resolve(fileutil.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
	}

	data, err := os.ReadFile(actual)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
	}
	return data, nil
}

// LoadSoundFont loads and parses a SoundFont (.sf2) file.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	data, err := ReadSoundFont(path)
	if err != nil {
		return nil, err
	}

	soundFont, err := parseSoundFont(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSoundFontInvalid, path, err)
	}
	return soundFont, nil
}

// parseSoundFont turns a panic on truncated data into an error.
func parseSoundFont(data []byte) (sf *meltysynth.SoundFont, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed SoundFont: %v", r)
		}
	}()
	return meltysynth.NewSoundFont(bytes.NewReader(data))
}
