package app

import (
	"os"
	"path/filepath"

	"github.com/zurustar/drumpractice/pkg/fileutil"
	"github.com/zurustar/drumpractice/pkg/settings"
)

// SettingsLocation represents where the sound-bank settings file was found.
type SettingsLocation struct {
	// Path is the path to the settings file
	Path string
	// Source names the searched location ("current directory", ...)
	Source string
}

// searchDir is one place findSettingsFile looks in.
type searchDir struct {
	dir    string
	source string
}

// defaultSearchDirs returns the directories searched for settings.txt:
// 1. Current directory
// 2. Config directory (XDG_CONFIG_HOME/drumpractice)
// 3. Directory of the executable
func defaultSearchDirs() []searchDir {
	dirs := []searchDir{
		{".", "current directory"},
		{filepath.Join(settings.XDGConfigHome(), "drumpractice"), "config directory"},
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, searchDir{filepath.Dir(exe), "executable directory"})
	}
	return dirs
}

// findSettingsFile searches dirs in order for the settings file, matching
// its name case-insensitively. It returns nil if none has one.
func findSettingsFile(name string, dirs []searchDir) *SettingsLocation {
	for _, d := range dirs {
		path, err := fileutil.FindFileCaseInsensitive(d.dir, name)
		if err != nil {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return &SettingsLocation{Path: path, Source: d.source}
		}
	}
	return nil
}

// locateSettingsFile fills in s.SettingsFile when it was left at its
// default and no explicit SoundFont was given.
func (app *Application) locateSettingsFile(s *settings.Settings) {
	if s.SoundFont != "" || s.SettingsFile != settings.DefaultSettingsFile {
		return
	}
	loc := findSettingsFile(settings.DefaultSettingsFile, app.searchDirs())
	if loc == nil {
		app.log.Debug("No settings file found in search path", "name", settings.DefaultSettingsFile)
		return
	}
	app.log.Info("Settings file found", "path", loc.Path, "source", loc.Source)
	s.SettingsFile = loc.Path
}
