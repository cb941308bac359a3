package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/avelkov/omnichat/internal/chat"
	"github.com/avelkov/omnichat/internal/store"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with the active provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), a)
		},
	}
}

// streamPrinter echoes the unseen suffix of the accumulated streaming buffer.
// One instance serves the whole session; reset must run before every dispatch
// so the offset never outlives the buffer it indexed.
type streamPrinter struct {
	out      io.Writer
	printed  int
	streamed bool
}

func (p *streamPrinter) reset() {
	p.printed = 0
	p.streamed = false
}

func (p *streamPrinter) observe(accumulated string) {
	if accumulated == "" {
		// Buffer promoted to a durable message; close the line.
		if p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		p.printed = 0
		return
	}
	p.streamed = true
	fmt.Fprint(p.out, accumulated[p.printed:])
	p.printed = len(accumulated)
}

func runChat(ctx context.Context, a *app) error {
	if err := selectStartConversation(ctx, a); err != nil {
		return err
	}

	printer := &streamPrinter{out: os.Stdout}
	a.svc.SetObserver(chat.TurnObserver{OnStreamDelta: printer.observe})

	fmt.Println("omnichat: /new /list /switch N /rename TITLE /edit TEXT /regenerate /quit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := runSlashCommand(ctx, a, printer, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			if quit {
				return nil
			}
			continue
		}

		printer.reset()
		err := a.svc.Send(ctx, line)
		switch {
		case errors.Is(err, chat.ErrNoProvider):
			fmt.Println("No provider configured. Run: omnichat provider set <name> <key>")
			continue
		case err != nil:
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		printLastAssistant(a, printer.streamed)
	}
}

// selectStartConversation restores the conversation that was current in the
// previous session, falling back to the newest one, creating the first one on
// an empty store.
func selectStartConversation(ctx context.Context, a *app) error {
	if err := a.store.LoadAll(ctx); err != nil {
		return err
	}
	convs := a.store.Conversations()
	if len(convs) == 0 {
		if _, err := a.store.Create(ctx); err != nil {
			return err
		}
		rememberCurrent(ctx, a)
		return nil
	}

	target := convs[0].ID
	var saved string
	if err := a.settings.Get(ctx, store.SettingCurrentUI, &saved); err == nil {
		for _, c := range convs {
			if c.ID == saved {
				target = saved
				break
			}
		}
	}
	if err := a.store.SwitchTo(ctx, target); err != nil {
		return err
	}
	rememberCurrent(ctx, a)
	return nil
}

// rememberCurrent persists the current conversation id so the next session
// reopens it. Best effort only.
func rememberCurrent(ctx context.Context, a *app) {
	if err := a.settings.Put(ctx, store.SettingCurrentUI, a.store.CurrentID()); err != nil {
		a.log.Warn().Err(err).Msg("persist current conversation failed")
	}
}

func runSlashCommand(ctx context.Context, a *app, printer *streamPrinter, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return true, nil
	case "/new":
		if _, err := a.store.Create(ctx); err != nil {
			return false, err
		}
		rememberCurrent(ctx, a)
		return false, nil
	case "/list":
		for i, c := range a.store.Conversations() {
			marker := " "
			if c.ID == a.store.CurrentID() {
				marker = "*"
			}
			fmt.Printf("%s %2d  %-50s  %d messages\n", marker, i+1, c.Title, c.MessageCount)
		}
		return false, nil
	case "/switch":
		if len(fields) != 2 {
			return false, errors.New("usage: /switch N")
		}
		n, err := strconv.Atoi(fields[1])
		convs := a.store.Conversations()
		if err != nil || n < 1 || n > len(convs) {
			return false, errors.New("no such conversation")
		}
		if err := a.store.SwitchTo(ctx, convs[n-1].ID); err != nil {
			return false, err
		}
		rememberCurrent(ctx, a)
		return false, nil
	case "/rename":
		if len(fields) < 2 {
			return false, errors.New("usage: /rename TITLE")
		}
		title := strings.TrimSpace(strings.TrimPrefix(line, "/rename"))
		return false, a.store.Rename(ctx, a.store.CurrentID(), title)
	case "/edit":
		if len(fields) < 2 {
			return false, errors.New("usage: /edit TEXT")
		}
		content := strings.TrimSpace(strings.TrimPrefix(line, "/edit"))
		return false, editLastUserMessage(ctx, a, content)
	case "/regenerate":
		printer.reset()
		if err := a.svc.Regenerate(ctx); err != nil {
			return false, err
		}
		printLastAssistant(a, printer.streamed)
		return false, nil
	default:
		return false, errors.Errorf("unknown command %s", fields[0])
	}
}

// editLastUserMessage rewrites the content of the most recent user message.
func editLastUserMessage(ctx context.Context, a *app, content string) error {
	msgs := a.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			_, err := a.store.UpdateMessage(ctx, msgs[i].ID, chat.MessagePatch{Content: &content})
			return err
		}
	}
	return errors.New("no user message to edit")
}

// printLastAssistant echoes the settled assistant message for batch turns;
// streamed turns already printed it delta by delta.
func printLastAssistant(a *app, streamed bool) {
	if streamed {
		return
	}
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != "assistant" {
		return
	}
	fmt.Println(last.Content)
}
