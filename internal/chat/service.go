package chat

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/avelkov/omnichat/internal/ai"
	"github.com/avelkov/omnichat/internal/credentials"
	"github.com/avelkov/omnichat/internal/store"
)

// ErrNoProvider signals that a turn was requested with no active provider
// credential configured. The user message is still persisted.
var ErrNoProvider = errors.New("chat: no provider configured")

// TurnState tracks one user turn: Idle → Dispatching → (Streaming|Awaiting)
// → Settled|Failed.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnDispatching
	TurnStreaming
	TurnAwaiting
	TurnSettled
	TurnFailed
)

func (t TurnState) String() string {
	switch t {
	case TurnIdle:
		return "idle"
	case TurnDispatching:
		return "dispatching"
	case TurnStreaming:
		return "streaming"
	case TurnAwaiting:
		return "awaiting"
	case TurnSettled:
		return "settled"
	case TurnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TurnObserver receives turn progress. OnStreamDelta carries the accumulated
// in-progress assistant text; it is called with "" once the buffer has been
// promoted to a durable message.
type TurnObserver struct {
	OnState       func(TurnState)
	OnStreamDelta func(accumulated string)
}

// Service orchestrates one user turn: vault decrypt, gateway dispatch
// (batch or streaming) and transcript appends, including the conversion of
// failures into visible transcript entries.
type Service struct {
	store    *Store
	creds    *credentials.Manager
	registry *ai.Registry
	settings *store.Settings
	log      zerolog.Logger
	observer TurnObserver
}

func NewService(st *Store, creds *credentials.Manager, registry *ai.Registry, settings *store.Settings, log zerolog.Logger) *Service {
	return &Service{store: st, creds: creds, registry: registry, settings: settings, log: log}
}

func (s *Service) SetObserver(o TurnObserver) {
	s.observer = o
}

func (s *Service) setState(st TurnState) {
	if s.observer.OnState != nil {
		s.observer.OnState(st)
	}
}

// Store exposes the conversation store for presentation code.
func (s *Service) Store() *Store { return s.store }

// Send runs one user turn. The user message is appended (and durable) before
// anything else; with no active provider it stays in the transcript and
// ErrNoProvider is returned without an assistant message. Provider, vault
// and decryption failures after that point become in-transcript error
// messages and Send returns nil: failures are data the user can see and
// regenerate against.
func (s *Service) Send(ctx context.Context, content string) error {
	if _, err := s.store.Append(ctx, ai.RoleUser, content, false); err != nil {
		return err
	}
	name, err := s.activeProvider(ctx)
	if err != nil {
		return err
	}
	return s.completeTurn(ctx, name)
}

// Regenerate truncates the transcript back to the last user message and
// re-runs the turn with that same content. Without a user message it is a
// no-op.
func (s *Service) Regenerate(ctx context.Context) error {
	msgs := s.store.Messages()
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleUser {
			last = i
			break
		}
	}
	if last == -1 {
		return nil
	}
	if err := s.store.TruncateAfter(ctx, msgs[last].ID); err != nil {
		return err
	}
	name, err := s.activeProvider(ctx)
	if err != nil {
		return err
	}
	return s.completeTurn(ctx, name)
}

// TestConnection validates the active credential with the adapter's minimal
// request, never touching the transcript.
func (s *Service) TestConnection(ctx context.Context) ai.TestResult {
	name, err := s.activeProvider(ctx)
	if errors.Is(err, ErrNoProvider) {
		return ai.TestResult{Success: false, Message: "No provider configured"}
	}
	if err != nil {
		return ai.TestResult{Success: false, Message: err.Error()}
	}
	provider, err := s.buildProvider(ctx, name)
	if err != nil {
		return ai.TestResult{Success: false, Message: err.Error()}
	}
	return provider.TestConnection(ctx)
}

func (s *Service) activeProvider(ctx context.Context) (string, error) {
	name, err := s.creds.Active(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrNoProvider
	}
	return name, nil
}

// buildProvider decrypts the active credential and constructs an adapter
// scoped to a single call. The plaintext key lives only in this frame and
// in the returned adapter, which the caller drops when the call settles.
func (s *Service) buildProvider(ctx context.Context, name string) (ai.Provider, error) {
	key, err := s.creds.DecryptedKey(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.registry.Get(name, key)
}

func (s *Service) completeTurn(ctx context.Context, name string) error {
	s.setState(TurnDispatching)
	if err := s.runProvider(ctx, name); err != nil {
		s.setState(TurnFailed)
		s.log.Warn().Err(err).Str("provider", name).Msg("turn failed")
		if _, aerr := s.store.Append(ctx, ai.RoleAssistant, "Error: "+err.Error(), true); aerr != nil {
			return aerr
		}
		return nil
	}
	s.setState(TurnSettled)
	return nil
}

func (s *Service) runProvider(ctx context.Context, name string) error {
	provider, err := s.buildProvider(ctx, name)
	if err != nil {
		return err
	}

	history := s.history()
	prefs, err := s.settings.GetPreferences(ctx)
	if err != nil {
		return err
	}

	sp, canStream := provider.(ai.StreamingProvider)
	if prefs.StreamResponses && canStream {
		return s.runStreaming(ctx, sp, history)
	}

	s.setState(TurnAwaiting)
	resp, err := provider.SendMessage(ctx, history, ai.Options{})
	if err != nil {
		return err
	}
	_, err = s.store.Append(ctx, ai.RoleAssistant, resp.Content, false)
	return err
}

func (s *Service) runStreaming(ctx context.Context, sp ai.StreamingProvider, history []ai.Message) error {
	s.setState(TurnStreaming)
	stream, err := sp.StreamMessage(ctx, history, ai.Options{Stream: true})
	if err != nil {
		return err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		b.WriteString(delta)
		if s.observer.OnStreamDelta != nil {
			s.observer.OnStreamDelta(b.String())
		}
	}

	if _, err := s.store.Append(ctx, ai.RoleAssistant, b.String(), false); err != nil {
		return err
	}
	if s.observer.OnStreamDelta != nil {
		s.observer.OnStreamDelta("")
	}
	return nil
}

// history projects the cached transcript down to role and content.
func (s *Service) history() []ai.Message {
	msgs := s.store.Messages()
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
