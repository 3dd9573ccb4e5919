// Package config loads project settings from {project}/settings.json.
//
// Every key has a default, and every key can be overridden from the
// environment with the SEMDEX_ prefix and dots replaced by underscores,
// e.g. SEMDEX_EMBEDDING_APIKEY or SEMDEX_REPOSITORY_CACHETTL=5m.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/poiesic/semdex/ai"
	"github.com/poiesic/semdex/storage"
)

// FileName is the settings file name inside a project directory.
const FileName = "settings.json"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "SEMDEX"

// Settings is the complete project configuration.
type Settings struct {
	SemanticModel   SemanticModelSettings   `mapstructure:"semanticModel"`
	Repository      RepositorySettings      `mapstructure:"repository"`
	Storage         StorageSettings         `mapstructure:"storage"`
	Embedding       EmbeddingSettings       `mapstructure:"embedding"`
	VectorIndex     VectorIndexSettings     `mapstructure:"vectorIndex"`
	Synchronization SynchronizationSettings `mapstructure:"synchronization"`
}

// SemanticModelSettings locates the project's semantic model.
type SemanticModelSettings struct {
	Name   string `mapstructure:"name"`
	Source string `mapstructure:"source"`
	// Path is the model directory or key, relative to the project unless absolute.
	Path                    string `mapstructure:"path"`
	PersistenceStrategy     string `mapstructure:"persistenceStrategy"`
	MaxConcurrentOperations int    `mapstructure:"maxConcurrentOperations"`
}

// RepositorySettings are the default repository load options.
type RepositorySettings struct {
	Caching        bool          `mapstructure:"caching"`
	CacheTTL       time.Duration `mapstructure:"cacheTtl"`
	LazyLoading    bool          `mapstructure:"lazyLoading"`
	ChangeTracking bool          `mapstructure:"changeTracking"`
	LockTimeout    time.Duration `mapstructure:"lockTimeout"`
}

// StorageSettings configure the non-default backends.
type StorageSettings struct {
	ObjectStoreRoot       string `mapstructure:"objectStoreRoot"`
	ObjectStorePrefix     string `mapstructure:"objectStorePrefix"`
	DocumentStorePath     string `mapstructure:"documentStorePath"`
	DocumentStoreInMemory bool   `mapstructure:"documentStoreInMemory"`
}

// EmbeddingSettings configure the embedding service.
type EmbeddingSettings struct {
	Provider   string `mapstructure:"provider"`
	Host       string `mapstructure:"host"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"apiKey"`
	APIVersion string `mapstructure:"apiVersion"`
	Dimensions int    `mapstructure:"dimensions"`
}

// VectorIndexSettings configure the vector index.
type VectorIndexSettings struct {
	Provider   string `mapstructure:"provider"`
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
}

// SynchronizationSettings tune vector synchronization.
type SynchronizationSettings struct {
	Workers        int           `mapstructure:"workers"`
	MaxRetries     int           `mapstructure:"maxRetries"`
	RetryDelay     time.Duration `mapstructure:"retryDelay"`
	Normalize      bool          `mapstructure:"normalize"`
	ReportInterval int           `mapstructure:"reportInterval"`
}

// Default returns the settings used for keys a project leaves out.
func Default() *Settings {
	embedding := ai.DefaultConfig()
	return &Settings{
		SemanticModel: SemanticModelSettings{
			Name:                    "SemanticModel",
			Path:                    "semantic-model",
			PersistenceStrategy:     "LocalDisk",
			MaxConcurrentOperations: 4,
		},
		Repository: RepositorySettings{
			Caching:     true,
			CacheTTL:    30 * time.Minute,
			LockTimeout: 30 * time.Second,
		},
		Storage: StorageSettings{
			ObjectStoreRoot:   ".objectstore",
			DocumentStorePath: ".documentstore",
		},
		Embedding: EmbeddingSettings{
			Provider:   embedding.Provider,
			Host:       embedding.EmbeddingHost,
			Model:      embedding.EmbeddingModel,
			APIVersion: embedding.APIVersion,
		},
		VectorIndex: VectorIndexSettings{
			Provider:   "sqlite",
			Path:       "vectors.db",
			Collection: "semantic_model",
		},
		Synchronization: SynchronizationSettings{
			Workers:        4,
			MaxRetries:     3,
			RetryDelay:     time.Second,
			ReportInterval: 10,
		},
	}
}

// Path returns the settings file path for a project.
func Path(projectPath string) string {
	return filepath.Join(projectPath, FileName)
}

// Load reads the project's settings, falling back to defaults for missing
// keys and for a missing file, then applies environment overrides.
func Load(projectPath string) (*Settings, error) {
	v := viper.New()
	for key, value := range keyValues(Default()) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := Path(projectPath)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes s to the project's settings file, creating the directory.
func Save(projectPath string, s *Settings) error {
	if err := os.MkdirAll(projectPath, 0755); err != nil {
		return fmt.Errorf("failed to create project dir: %w", err)
	}
	v := viper.New()
	for key, value := range keyValues(s) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(Path(projectPath)); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Validate checks settings that would otherwise fail deep inside a run.
func (s *Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.SemanticModel.Name) == "" {
		problems = append(problems, "semanticModel.name is required")
	}
	if strings.TrimSpace(s.SemanticModel.Path) == "" {
		problems = append(problems, "semanticModel.path is required")
	}
	if s.SemanticModel.MaxConcurrentOperations < 1 {
		problems = append(problems, "semanticModel.maxConcurrentOperations must be at least 1")
	}
	if s.Repository.Caching && s.Repository.CacheTTL <= 0 {
		problems = append(problems, "repository.cacheTtl must be positive when caching")
	}
	if s.Repository.LockTimeout < 0 {
		problems = append(problems, "repository.lockTimeout must not be negative")
	}
	if s.Synchronization.Workers < 1 {
		problems = append(problems, "synchronization.workers must be at least 1")
	}
	if s.Synchronization.MaxRetries < 1 {
		problems = append(problems, "synchronization.maxRetries must be at least 1")
	}
	if p := strings.ToLower(s.VectorIndex.Provider); p != "sqlite" {
		problems = append(problems, fmt.Sprintf("vectorIndex.provider %q is not supported", s.VectorIndex.Provider))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", storage.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// ModelPath resolves the semantic model path against the project.
func (s *Settings) ModelPath(projectPath string) string {
	return resolve(projectPath, s.SemanticModel.Path)
}

// ObjectStoreRoot resolves the object store root against the project.
func (s *Settings) ObjectStoreRoot(projectPath string) string {
	return resolve(projectPath, s.Storage.ObjectStoreRoot)
}

// DocumentStorePath resolves the document store directory against the project.
func (s *Settings) DocumentStorePath(projectPath string) string {
	return resolve(projectPath, s.Storage.DocumentStorePath)
}

// VectorIndexPath resolves the vector index database against the project.
func (s *Settings) VectorIndexPath(projectPath string) string {
	if s.VectorIndex.Path == ":memory:" {
		return s.VectorIndex.Path
	}
	return resolve(projectPath, s.VectorIndex.Path)
}

// AIConfig converts the embedding settings to an ai.Config.
func (s *Settings) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(s.Embedding.Provider),
		ai.WithEmbeddingHost(s.Embedding.Host),
		ai.WithEmbeddingModel(s.Embedding.Model),
		ai.WithAPIKey(s.Embedding.APIKey),
		ai.WithAPIVersion(s.Embedding.APIVersion),
		ai.WithDimensions(s.Embedding.Dimensions),
	)
}

func resolve(projectPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectPath, p)
}

func keyValues(s *Settings) map[string]any {
	return map[string]any{
		"semanticModel.name":                    s.SemanticModel.Name,
		"semanticModel.source":                  s.SemanticModel.Source,
		"semanticModel.path":                    s.SemanticModel.Path,
		"semanticModel.persistenceStrategy":     s.SemanticModel.PersistenceStrategy,
		"semanticModel.maxConcurrentOperations": s.SemanticModel.MaxConcurrentOperations,

		"repository.caching":        s.Repository.Caching,
		"repository.cacheTtl":       s.Repository.CacheTTL,
		"repository.lazyLoading":    s.Repository.LazyLoading,
		"repository.changeTracking": s.Repository.ChangeTracking,
		"repository.lockTimeout":    s.Repository.LockTimeout,

		"storage.objectStoreRoot":       s.Storage.ObjectStoreRoot,
		"storage.objectStorePrefix":     s.Storage.ObjectStorePrefix,
		"storage.documentStorePath":     s.Storage.DocumentStorePath,
		"storage.documentStoreInMemory": s.Storage.DocumentStoreInMemory,

		"embedding.provider":   s.Embedding.Provider,
		"embedding.host":       s.Embedding.Host,
		"embedding.model":      s.Embedding.Model,
		"embedding.apiKey":     s.Embedding.APIKey,
		"embedding.apiVersion": s.Embedding.APIVersion,
		"embedding.dimensions": s.Embedding.Dimensions,

		"vectorIndex.provider":   s.VectorIndex.Provider,
		"vectorIndex.path":       s.VectorIndex.Path,
		"vectorIndex.collection": s.VectorIndex.Collection,

		"synchronization.workers":        s.Synchronization.Workers,
		"synchronization.maxRetries":     s.Synchronization.MaxRetries,
		"synchronization.retryDelay":     s.Synchronization.RetryDelay,
		"synchronization.normalize":      s.Synchronization.Normalize,
		"synchronization.reportInterval": s.Synchronization.ReportInterval,
	}
}
