package core

import (
	"github.com/echoprompt/echomem-go/pkg/embedder"
	openaiEmbedder "github.com/echoprompt/echomem-go/pkg/embedder/openai"
	"github.com/echoprompt/echomem-go/pkg/llm"
	openaiLLM "github.com/echoprompt/echomem-go/pkg/llm/openai"
	"github.com/echoprompt/echomem-go/pkg/relational"
	relationalSqlite "github.com/echoprompt/echomem-go/pkg/relational/sqlite"
	"github.com/echoprompt/echomem-go/pkg/vector"
	chromemStore "github.com/echoprompt/echomem-go/pkg/vector/chromem"
	mysqlStore "github.com/echoprompt/echomem-go/pkg/vector/mysql"
	postgresStore "github.com/echoprompt/echomem-go/pkg/vector/postgres"
	sqliteStore "github.com/echoprompt/echomem-go/pkg/vector/sqlite"
)

// initVectorStore initializes the vector storage backend.
func initVectorStore(cfg VectorStoreConfig) (vector.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             configString(cfg.Config, "db_path", "./echomem_vectors.db"),
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims", 1536),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:               configString(cfg.Config, "host", "localhost"),
			Port:               configInt(cfg.Config, "port", 5432),
			User:               configString(cfg.Config, "user", "postgres"),
			Password:           configString(cfg.Config, "password", ""),
			DBName:             configString(cfg.Config, "db_name", "echomem"),
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims", 1536),
			SSLMode:            configString(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:               configString(cfg.Config, "host", "127.0.0.1"),
			Port:               configInt(cfg.Config, "port", 3306),
			User:               configString(cfg.Config, "user", "root"),
			Password:           configString(cfg.Config, "password", ""),
			DBName:             configString(cfg.Config, "db_name", "echomem"),
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims", 1536),
		})
	case "chromem":
		return chromemStore.NewClient(&chromemStore.Config{
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims", 1536),
		})
	default:
		return nil, NewMemoryError("initVectorStore", ErrInvalidConfig)
	}
}

// initEmbedder initializes the embedding provider.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig)
	}
}

// initLLM initializes the LLM provider.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, NewMemoryError("initLLM", ErrInvalidConfig)
	}
}

// initRelational initializes the relational store. An empty provider means
// the engine runs without one.
func initRelational(cfg RelationalConfig) (relational.Store, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "sqlite":
		return relationalSqlite.NewStore(&relationalSqlite.Config{
			DBPath: cfg.DBPath,
		})
	default:
		return nil, NewMemoryError("initRelational", ErrInvalidConfig)
	}
}

// configString reads a string value from a provider config map.
func configString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// configInt reads an int value from a provider config map. JSON-decoded
// configs carry numbers as float64, so both representations are accepted.
func configInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		if v != 0 {
			return v
		}
	case float64:
		if v != 0 {
			return int(v)
		}
	}
	return def
}
