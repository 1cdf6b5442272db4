package config

// WatchedDirectory describes one directory under watch: what patterns
// match, whether to recurse, and which tasks new/changed files trigger.
type WatchedDirectory struct {
	Path            string         `yaml:"path"`
	Patterns        []string       `yaml:"patterns"`
	Recursive       bool           `yaml:"recursive"`
	AutoProcess     bool           `yaml:"auto_process"`
	ProcessingTasks []string       `yaml:"processing_tasks"`
	StoreInVectorDB bool           `yaml:"store_in_vector_db"`
	Metadata        map[string]any `yaml:"metadata,omitempty"`
}

func defaultPatterns() []string {
	return []string{"*.txt", "*.md", "*.pdf", "*.docx"}
}

func defaultProcessingTasks() []string {
	return []string{"summarize", "extract_insights"}
}

// MonitorConfig is the declarative, persistable record describing watched
// directories, patterns, processing tasks, and resource caps (§4.8).
type MonitorConfig struct {
	Watched             []WatchedDirectory `yaml:"watched_directories"`
	ProcessingEnabled   bool               `yaml:"processing_enabled"`
	BatchSize           int                `yaml:"batch_size"`
	MaxConcurrent       int                `yaml:"max_concurrent"`
	DebounceSeconds     float64            `yaml:"debounce_seconds"`
	IgnorePatterns      []string           `yaml:"ignore_patterns"`
	SupportedExtensions []string           `yaml:"supported_extensions"`
	DefaultProcessor    string             `yaml:"default_processor"`
	VectorDBPath        string             `yaml:"vector_db_path"`
	QueueMaxSize        int                `yaml:"queue_max_size"`
}

// Default returns a MonitorConfig with the same sensible defaults the
// pipeline falls back to when no config file is present.
func Default() *MonitorConfig {
	return &MonitorConfig{
		ProcessingEnabled: true,
		BatchSize:         5,
		MaxConcurrent:     3,
		DebounceSeconds:   2.0,
		IgnorePatterns:    []string{"*.tmp", "*.temp", ".*", "__pycache__", "*.pyc", ".DS_Store"},
		SupportedExtensions: []string{
			".txt", ".md", ".pdf", ".docx", ".doc", ".rtf", ".odt",
		},
		DefaultProcessor: "local_llm",
		VectorDBPath:     "./lumen_db",
		QueueMaxSize:     100,
	}
}
