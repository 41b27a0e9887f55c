// Package main is a command line client for a genrelay server. It submits a
// generation and polls it until it finishes or the model's time limit passes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/api"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/generation"
)

const defaultAddr = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "submit":
		err = submitCmd(ctx, os.Args[2:], os.Stdout)
	case "status":
		err = statusCmd(ctx, os.Args[2:], os.Stdout)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, generation.ErrPollTimeout) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  genctl submit --prompt <text> [--model <name>] [--aspect-ratio 16:9] [--image-url <url>] [--no-wait] [--addr <url>]
  genctl status --id <generation-id> [--wait] [--addr <url>]
`)
}

// submitCmd: POST /api/generations, then poll unless --no-wait.
func submitCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	prompt := fs.String("prompt", "", "Generation prompt")
	model := fs.String("model", "", "Model name (server default when empty)")
	aspect := fs.String("aspect-ratio", "", "Aspect ratio")
	imageURL := fs.String("image-url", "", "Source image URL")
	noWait := fs.Bool("no-wait", false, "Print the accepted task and exit")
	addr := fs.String("addr", defaultAddr, "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prompt == "" {
		return errors.New("--prompt is required")
	}

	c := newClient(*addr, &http.Client{Timeout: 30 * time.Second})
	accepted, err := c.Submit(ctx, api.CreateGenerationRequest{
		Prompt:      *prompt,
		Model:       *model,
		AspectRatio: *aspect,
		ImageURL:    *imageURL,
	})
	if err != nil {
		return err
	}
	if *noWait {
		return printJSON(out, accepted)
	}

	task, err := generation.Await(ctx,
		func(ctx context.Context) (*domain.GenerationTask, error) { return c.Status(ctx, accepted.ID) },
		time.Duration(accepted.PollIntervalSeconds)*time.Second,
		time.Duration(accepted.PollTimeoutSeconds)*time.Second,
	)
	if task != nil {
		if printErr := printJSON(out, task); printErr != nil {
			return printErr
		}
	}
	return err
}

// statusCmd: GET /api/generations/{id}, optionally polling to completion.
func statusCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	rawID := fs.String("id", "", "Generation ID")
	wait := fs.Bool("wait", false, "Poll until the generation finishes")
	interval := fs.Duration("interval", 5*time.Second, "Polling interval with --wait")
	timeout := fs.Duration("timeout", 10*time.Minute, "Give up after this long with --wait")
	addr := fs.String("addr", defaultAddr, "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := uuid.Parse(*rawID)
	if err != nil {
		return fmt.Errorf("--id must be a generation ID: %w", err)
	}

	c := newClient(*addr, &http.Client{Timeout: 30 * time.Second})
	fetch := func(ctx context.Context) (*domain.GenerationTask, error) { return c.Status(ctx, id) }

	var task *domain.GenerationTask
	if *wait {
		task, err = generation.Await(ctx, fetch, *interval, *timeout)
	} else {
		task, err = fetch(ctx)
	}
	if task != nil {
		if printErr := printJSON(out, task); printErr != nil {
			return printErr
		}
	}
	return err
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
