// Package config implements the YAML-backed monitor configuration: watched
// directories, ignore/extension filters, and the knobs the queue and worker
// pool are sized from (§4.8).
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"gopkg.in/yaml.v3"
)

var validProcessors = map[string]bool{
	"local_llm":  true,
	"remote_llm": true,
	"vector":     true,
}

// Load reads path as YAML into a MonitorConfig seeded with Default() values,
// so keys absent from the file keep their default. A missing file is not an
// error: it yields the defaults untouched.
func Load(path string) (*MonitorConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindStorageIO, "read monitor config", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindConfigInvalid, "parse monitor config", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, atomically (temp file + rename).
func Save(cfg *MonitorConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "marshal monitor config", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return pipelineerr.Wrap(pipelineerr.KindStorageIO, "create config directory", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "write monitor config temp", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return pipelineerr.Wrap(pipelineerr.KindStorageIO, "rename monitor config", err)
	}
	return nil
}

// AddWatchedDirectory appends a new watched directory, rejecting a path that
// doesn't exist or is already watched.
func (c *MonitorConfig) AddWatchedDirectory(wd WatchedDirectory) error {
	abs, err := filepath.Abs(wd.Path)
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.KindConfigInvalid, "resolve watched directory path", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return pipelineerr.New(pipelineerr.KindConfigInvalid, "directory does not exist: "+wd.Path)
	}
	for _, existing := range c.Watched {
		existingAbs, _ := filepath.Abs(existing.Path)
		if existingAbs == abs {
			return pipelineerr.New(pipelineerr.KindConfigInvalid, "directory already watched: "+wd.Path)
		}
	}

	wd.Path = abs
	if len(wd.Patterns) == 0 {
		wd.Patterns = defaultPatterns()
	}
	if len(wd.ProcessingTasks) == 0 {
		wd.ProcessingTasks = defaultProcessingTasks()
	}
	c.Watched = append(c.Watched, wd)
	return nil
}

// RemoveWatchedDirectory drops the watched directory matching path, returning
// false if no match was found.
func (c *MonitorConfig) RemoveWatchedDirectory(path string) bool {
	abs, _ := filepath.Abs(path)
	for i, wd := range c.Watched {
		wdAbs, _ := filepath.Abs(wd.Path)
		if wdAbs == abs {
			c.Watched = append(c.Watched[:i], c.Watched[i+1:]...)
			return true
		}
	}
	return false
}

// IsFileSupported reports whether path's extension is in SupportedExtensions.
func (c *MonitorConfig) IsFileSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range c.SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// ShouldIgnoreFile reports whether path's base name matches any ignore
// pattern.
func (c *MonitorConfig) ShouldIgnoreFile(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range c.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// DirectoryFor returns the watched directory containing path, if any.
func (c *MonitorConfig) DirectoryFor(path string) (*WatchedDirectory, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	for i := range c.Watched {
		wdAbs, err := filepath.Abs(c.Watched[i].Path)
		if err != nil {
			continue
		}
		if abs == wdAbs || strings.HasPrefix(abs, wdAbs+string(filepath.Separator)) {
			return &c.Watched[i], true
		}
	}
	return nil, false
}

// Validate returns human-readable issues with the configuration. The
// pipeline refuses to start when this is non-empty.
func (c *MonitorConfig) Validate() []string {
	var issues []string

	for _, wd := range c.Watched {
		if _, err := os.Stat(wd.Path); err != nil {
			issues = append(issues, "watched directory does not exist: "+wd.Path)
		}
	}
	if c.BatchSize <= 0 {
		issues = append(issues, "batch_size must be positive")
	}
	if c.MaxConcurrent <= 0 {
		issues = append(issues, "max_concurrent must be positive")
	}
	if c.DebounceSeconds < 0 {
		issues = append(issues, "debounce_seconds must be non-negative")
	}
	if !validProcessors[c.DefaultProcessor] {
		issues = append(issues, "invalid default_processor: "+c.DefaultProcessor)
	}
	return issues
}

// Summary returns a small operator-facing snapshot of the configuration.
func (c *MonitorConfig) Summary() map[string]any {
	paths := make([]string, len(c.Watched))
	for i, wd := range c.Watched {
		paths[i] = wd.Path
	}
	return map[string]any{
		"watched_directories_count": len(c.Watched),
		"watched_paths":             paths,
		"processing_enabled":        c.ProcessingEnabled,
		"default_processor":         c.DefaultProcessor,
		"supported_extensions":      c.SupportedExtensions,
		"batch_size":                c.BatchSize,
		"max_concurrent":            c.MaxConcurrent,
	}
}
