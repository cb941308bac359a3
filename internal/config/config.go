package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	DBPath   string
	LogLevel string

	// Passphrase overrides the ambient vault derivation when set.
	Passphrase string

	OpenAIBaseURL string
	OpenAIModel   string
	GeminiBaseURL string
	GeminiModel   string
}

func Load() Config {
	dbPath := os.Getenv("OMNICHAT_DB_PATH")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dbPath = filepath.Join(home, ".omnichat", "omnichat.db")
	}

	logLevel := os.Getenv("OMNICHAT_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Config{
		DBPath:     dbPath,
		LogLevel:   logLevel,
		Passphrase: os.Getenv("OMNICHAT_PASSPHRASE"),

		OpenAIBaseURL: os.Getenv("OMNICHAT_OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OMNICHAT_OPENAI_MODEL"),
		GeminiBaseURL: os.Getenv("OMNICHAT_GEMINI_BASE_URL"),
		GeminiModel:   os.Getenv("OMNICHAT_GEMINI_MODEL"),
	}
}
