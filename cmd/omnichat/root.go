package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/avelkov/omnichat/internal/ai"
	"github.com/avelkov/omnichat/internal/chat"
	"github.com/avelkov/omnichat/internal/config"
	"github.com/avelkov/omnichat/internal/credentials"
	"github.com/avelkov/omnichat/internal/store"
)

// app wires the core together for the CLI: one store, one credential
// manager, one registry, one orchestrator.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	settings *store.Settings
	creds    *credentials.Manager
	store    *chat.Store
	svc      *chat.Service
}

func newApp() (*app, error) {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DBPath, &chat.Conversation{}, &chat.Message{})
	if err != nil {
		return nil, err
	}

	settings := store.NewSettings(db)
	creds := credentials.NewManager(db, cfg.Passphrase, log)

	registry := ai.NewRegistry()
	registry.Register("openai", func(key string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, key, cfg.OpenAIModel), nil
	})
	registry.Register("gemini", func(key string) (ai.Provider, error) {
		return ai.NewGeminiProvider(cfg.GeminiBaseURL, key, cfg.GeminiModel), nil
	})

	st := chat.NewStore(chat.NewRepo(db), log)
	svc := chat.NewService(st, creds, registry, settings, log)

	return &app{
		cfg:      cfg,
		log:      log,
		settings: settings,
		creds:    creds,
		store:    st,
		svc:      svc,
	}, nil
}

func newRootCmd() (*cobra.Command, error) {
	a, err := newApp()
	if err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:           "omnichat",
		Short:         "Chat with interchangeable LLM backends, keys encrypted at rest",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newChatCmd(a),
		newProviderCmd(a),
		newConversationsCmd(a),
		newPrefsCmd(a),
	)
	return root, nil
}
