package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/database/postgres"
	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/session"
)

const encoderTimeout = 30 * time.Second

// stdin is shared so the menu and the prompts of its actions read from the same buffer.
var stdin = bufio.NewReader(os.Stdin)

func newEncoder(cfg *config.Config) *encoder.Client {
	return encoder.NewClient(cfg.Embedding.URL, encoderTimeout)
}

// signalContext is canceled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openMirror connects the optional PostgreSQL mirror. Without DATABASE_URL it
// returns a nil pool and no sinks.
func openMirror(ctx context.Context, cfg *config.Config) (*postgres.Pool, []session.Sink, error) {
	if cfg.Database.URL == "" {
		return nil, nil, nil
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, []session.Sink{postgres.NewAttendanceRepository(pool)}, nil
}

// prompt prints question and reads one trimmed line.
func prompt(r *bufio.Reader, question string) (string, error) {
	fmt.Print(question)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question, defaulting to no.
func confirm(r *bufio.Reader, question string) (bool, error) {
	answer, err := prompt(r, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func outputJSON(data any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
