package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/avelkov/omnichat/internal/ai"
	"github.com/avelkov/omnichat/internal/chat"
	"github.com/avelkov/omnichat/internal/credentials"
	"github.com/avelkov/omnichat/internal/store"
)

func newTestApp(t *testing.T) (*app, *gorm.DB) {
	t.Helper()
	db, err := store.Open(":memory:", &chat.Conversation{}, &chat.Message{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return appOverDB(db), db
}

func appOverDB(db *gorm.DB) *app {
	log := zerolog.Nop()
	settings := store.NewSettings(db)
	creds := credentials.NewManager(db, "test-passphrase", log)
	st := chat.NewStore(chat.NewRepo(db), log)
	return &app{
		log:      log,
		settings: settings,
		creds:    creds,
		store:    st,
	}
}

// withStreamingProvider wires the app's service to an SSE server that plays
// the given replies in order, one delta per word.
func withStreamingProvider(t *testing.T, a *app, replies []string) {
	t.Helper()
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := replies[len(replies)-1]
		if call < len(replies) {
			reply = replies[call]
		}
		call++
		for _, word := range strings.SplitAfter(reply, " ") {
			b, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": word}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	registry := ai.NewRegistry()
	registry.Register("openai", func(key string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(srv.URL, key, ""), nil
	})
	a.svc = chat.NewService(a.store, a.creds, registry, a.settings, a.log)

	ctx := context.Background()
	if err := a.creds.Set(ctx, "openai", "sk-test"); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	if err := a.creds.SetActive(ctx, "openai"); err != nil {
		t.Fatalf("set active: %v", err)
	}
}

func TestStreamPrinterPrintsUnseenSuffix(t *testing.T) {
	var out bytes.Buffer
	p := &streamPrinter{out: &out}

	p.observe("Hel")
	p.observe("Hello")
	p.observe("")
	if out.String() != "Hello\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if !p.streamed {
		t.Fatal("streamed flag not set")
	}

	// After a reset a shorter buffer than anything seen before prints whole.
	p.reset()
	p.observe("hi")
	if out.String() != "Hello\nhi" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestStreamPrinterSurvivesRegenerate(t *testing.T) {
	a, _ := newTestApp(t)
	withStreamingProvider(t, a, []string{
		"a rather long streamed answer",
		"still long after regenerating",
		"ok",
	})
	ctx := context.Background()

	var out bytes.Buffer
	printer := &streamPrinter{out: &out}
	a.svc.SetObserver(chat.TurnObserver{OnStreamDelta: printer.observe})

	printer.reset()
	if err := a.svc.Send(ctx, "first question"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := runSlashCommand(ctx, a, printer, "/regenerate"); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	// The next turn's reply is shorter than the regenerated one; the printer
	// must start from offset zero, not index past the new buffer.
	printer.reset()
	if err := a.svc.Send(ctx, "second question"); err != nil {
		t.Fatalf("send after regenerate: %v", err)
	}

	if !strings.HasSuffix(strings.TrimRight(out.String(), "\n"), "ok") {
		t.Fatalf("short reply not printed cleanly: %q", out.String())
	}
	msgs := a.store.Messages()
	if msgs[len(msgs)-1].Content != "ok" {
		t.Fatalf("unexpected last message %+v", msgs[len(msgs)-1])
	}
}

func TestStartRestoresSavedConversation(t *testing.T) {
	_, db := newTestApp(t)
	ctx := context.Background()

	seed := appOverDB(db)
	first, err := seed.store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := seed.store.Create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := seed.settings.Put(ctx, store.SettingCurrentUI, first); err != nil {
		t.Fatalf("save current: %v", err)
	}

	// A fresh session over the same store reopens the saved conversation,
	// not the newest one.
	fresh := appOverDB(db)
	if err := selectStartConversation(ctx, fresh); err != nil {
		t.Fatalf("select: %v", err)
	}
	if fresh.store.CurrentID() != first {
		t.Fatalf("expected %s restored, got %s", first, fresh.store.CurrentID())
	}
}

func TestStartFallsBackWhenSavedConversationIsGone(t *testing.T) {
	_, db := newTestApp(t)
	ctx := context.Background()

	seed := appOverDB(db)
	newest, err := seed.store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := seed.settings.Put(ctx, store.SettingCurrentUI, "deleted-long-ago"); err != nil {
		t.Fatalf("save current: %v", err)
	}

	fresh := appOverDB(db)
	if err := selectStartConversation(ctx, fresh); err != nil {
		t.Fatalf("select: %v", err)
	}
	if fresh.store.CurrentID() != newest {
		t.Fatalf("expected newest %s, got %s", newest, fresh.store.CurrentID())
	}

	// The stale id was replaced by the one actually selected.
	var saved string
	if err := fresh.settings.Get(ctx, store.SettingCurrentUI, &saved); err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if saved != newest {
		t.Fatalf("expected %s persisted, got %s", newest, saved)
	}
}

func TestStartCreatesConversationOnEmptyStore(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	if err := selectStartConversation(ctx, a); err != nil {
		t.Fatalf("select: %v", err)
	}
	if a.store.CurrentID() == "" {
		t.Fatal("no conversation created")
	}
	var saved string
	if err := a.settings.Get(ctx, store.SettingCurrentUI, &saved); err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if saved != a.store.CurrentID() {
		t.Fatalf("expected %s persisted, got %s", a.store.CurrentID(), saved)
	}
}

func TestRenameAndEditCommands(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	if _, err := a.store.Create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.store.Append(ctx, "user", "typo question", false); err != nil {
		t.Fatalf("append: %v", err)
	}

	printer := &streamPrinter{out: io.Discard}
	if _, err := runSlashCommand(ctx, a, printer, "/rename Weekly sync notes"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got := a.store.Current().Title; got != "Weekly sync notes" {
		t.Fatalf("unexpected title %q", got)
	}

	if _, err := runSlashCommand(ctx, a, printer, "/edit fixed question"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	msgs := a.store.Messages()
	if msgs[0].Content != "fixed question" || msgs[0].EditedAt == nil {
		t.Fatalf("edit not applied: %+v", msgs[0])
	}

	// Usage errors, not panics, on missing arguments.
	if _, err := runSlashCommand(ctx, a, printer, "/rename"); err == nil {
		t.Fatal("expected usage error")
	}
	if _, err := runSlashCommand(ctx, a, printer, "/edit"); err == nil {
		t.Fatal("expected usage error")
	}
}
