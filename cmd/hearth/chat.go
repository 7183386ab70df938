package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"hearth/internal/assistant"
	"hearth/internal/draft"
	"hearth/internal/session"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Plan an event in an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, cleanup, err := buildAssistant(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	sessionID, err := a.StartSession(ctx, currentUserID())
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	fmt.Println("Hearth - event planning assistant")
	fmt.Printf("Provider: %s (%s)   Session: %s\n", cfg.Provider.Name, cfg.Provider.Model, sessionID)
	fmt.Println("Describe the event you want to plan. Commands: /draft /publish /new /quit")
	fmt.Println()

	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       filepath.Join(homeDir, ".hearth-history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "/quit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				fmt.Println("\nGoodbye!")
				return nil
			}
			continue
		}
		if err == io.EOF {
			fmt.Println("\nGoodbye!")
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			done, err := handleCommand(ctx, a, &sessionID, input)
			if err != nil {
				fmt.Printf("Error: %v\n\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		reply, err := a.HandleMessage(ctx, sessionID, input)
		if err != nil {
			if session.IsTerminalState(err) {
				fmt.Println("This conversation has ended. Use /new to start another one.")
				fmt.Println()
				continue
			}
			fmt.Printf("Error: %v\n\n", err)
			continue
		}

		fmt.Printf("\n%s\n", reply.ResponseText)
		if reply.DraftPreview != "" {
			fmt.Printf("\nCurrent draft:\n%s\n", indent(reply.DraftPreview))
		}
		if reply.Status == session.StatusFailed {
			fmt.Println("\nThe session failed. Use /new to start over.")
		}
		fmt.Println()
	}
}

// handleCommand processes slash commands; it returns true when the REPL
// should exit.
func handleCommand(ctx context.Context, a *assistant.Assistant, sessionID *string, input string) (bool, error) {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true, nil

	case "/draft":
		current, err := a.GetDraft(ctx, *sessionID)
		if err != nil {
			return false, err
		}
		if current == nil {
			fmt.Println("No draft yet.")
			fmt.Println()
			return false, nil
		}
		fmt.Printf("Draft version %d:\n%s\n", current.Version, indent(current.Summary()))
		if current.Materialized() {
			fmt.Printf("Published as event %s\n", current.EventID)
		}
		fmt.Println()
		return false, nil

	case "/publish":
		event, err := a.MaterializeDraft(ctx, *sessionID)
		if err != nil {
			var incomplete *draft.IncompleteDraftError
			if errors.As(err, &incomplete) {
				fmt.Printf("The draft is not ready: missing %s\n\n", strings.Join(incomplete.Missing, ", "))
				return false, nil
			}
			return false, err
		}
		fmt.Printf("Published! Event id: %s\n\n", event.EventID)
		return false, nil

	case "/new":
		id, err := a.StartSession(ctx, currentUserID())
		if err != nil {
			return false, err
		}
		*sessionID = id
		fmt.Printf("Started session %s\n\n", id)
		return false, nil

	default:
		fmt.Println("Commands: /draft /publish /new /quit")
		fmt.Println()
		return false, nil
	}
}

func currentUserID() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "staff"
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
