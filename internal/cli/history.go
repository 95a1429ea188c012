package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rogercare/roger-go/internal/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "List recorded crisis events for a session",
	Long: `List crisis events recorded for a session, newest first.

Each event shows when it happened, the crisis type and severity, the
message that triggered it, and how it was detected.

Examples:
  roger history default
  roger history margaret -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "max events (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	ctx := context.Background()

	logLevel := slog.LevelError
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	storeClient, err := connectStore(ctx, logger)
	if err != nil {
		return err
	}
	defer func() { _ = storeClient.Close(ctx) }()

	events, err := storeClient.ListCrisisEvents(ctx, sessionID, historyLimit)
	if err != nil {
		return fmt.Errorf("list crisis events: %w", err)
	}

	if len(events) == 0 {
		fmt.Printf("No crisis events recorded for session %q.\n", sessionID)
		return nil
	}

	fmt.Printf("Crisis events for session %q (%d)\n", sessionID, len(events))
	fmt.Printf("═══════════════════════════════════════\n\n")
	printCrisisEvents(os.Stdout, events)
	return nil
}

// printCrisisEvents displays events newest first.
func printCrisisEvents(w io.Writer, events []models.CrisisEvent) {
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-16s %s\n",
			e.Timestamp.Local().Format(time.RFC3339),
			e.CrisisType,
			e.Severity)
		if e.UserMessage != "" {
			fmt.Fprintf(w, "  message:   %s\n", e.UserMessage)
		}
		if e.DetectionMethod != "" {
			fmt.Fprintf(w, "  detected:  %s\n", e.DetectionMethod)
		}
		if e.RiskAssessment != "" {
			fmt.Fprintf(w, "  risk:      %s\n", e.RiskAssessment)
		}
		if e.SessionDuration > 0 {
			d := time.Duration(e.SessionDuration) * time.Millisecond
			fmt.Fprintf(w, "  duration:  %s\n", d.Round(time.Second))
		}
		fmt.Fprintln(w)
	}
}
