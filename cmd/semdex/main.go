// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/semdex"
	"github.com/poiesic/semdex/config"
	"github.com/poiesic/semdex/vectors"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "semdex",
		Usage: "Persist, cache and embed database semantic models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write a default settings.json for a project",
				Action: initCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.StringFlag{
						Name:  "name",
						Usage: "Semantic model name",
						Value: "SemanticModel",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Persistence strategy (LocalDisk, ObjectStore, DocumentStore)",
						Value: "LocalDisk",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite existing settings",
					},
				},
			},
			{
				Name:   "generate-vectors",
				Usage:  "Generate embeddings for entities whose content changed",
				Action: generateVectorsCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "Regenerate embeddings even when content is unchanged",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report what would be generated without calling the embedding service",
					},
					&cli.BoolFlag{
						Name:  "skip-tables",
						Usage: "Skip tables",
					},
					&cli.BoolFlag{
						Name:  "skip-views",
						Usage: "Skip views",
					},
					&cli.BoolFlag{
						Name:  "skip-stored-procedures",
						Usage: "Skip stored procedures",
					},
					&cli.StringFlag{
						Name:  "object-type",
						Usage: "Only process this entity type (table, view, storedprocedure)",
					},
					&cli.StringFlag{
						Name:  "schema",
						Usage: "Only process entities in this schema",
					},
					&cli.StringFlag{
						Name:  "object-name",
						Usage: "Only process the entity with this name",
					},
					&cli.StringFlag{
						Name:  "embedding-provider",
						Usage: "Embedding provider (openai, azure); overrides settings",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL; overrides settings",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model or deployment name; overrides settings",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of entities processed in parallel; overrides settings",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entities; overrides settings",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per embedding; overrides settings",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff; overrides settings",
					},
					&cli.BoolFlag{
						Name:  "normalize",
						Usage: "Scale vectors to unit length before storing them",
					},
				},
			},
			{
				Name:   "show-model",
				Usage:  "List the entities of a model and their embedding status",
				Action: showModelCommand,
				Flags: []cli.Flag{
					projectFlag(),
				},
			},
			{
				Name:   "cache-stats",
				Usage:  "Load a model repeatedly and report model cache statistics",
				Action: cacheStatsCommand,
				Flags: []cli.Flag{
					projectFlag(),
					&cli.IntFlag{
						Name:  "loads",
						Usage: "Number of times to load the model",
						Value: 2,
					},
				},
			},
		},
	}
}

func projectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "project",
		Aliases: []string{"p"},
		Usage:   "Project directory containing settings.json",
		Value:   ".",
	}
}

// signalContext cancels on interrupt so a run stops between entities.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}

func initCommand(c *cli.Context) error {
	project := c.String("project")
	if _, err := os.Stat(config.Path(project)); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", config.Path(project))
	}
	s := config.Default()
	s.SemanticModel.Name = c.String("name")
	s.SemanticModel.PersistenceStrategy = c.String("strategy")
	if err := s.Validate(); err != nil {
		return err
	}
	if err := config.Save(project, s); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", config.Path(project))
	return nil
}

func generateVectorsCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	project := c.String("project")
	settings, err := config.Load(project)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	applyOverrides(c, settings)

	ws, err := semdex.Open(ctx, project,
		semdex.WithSettings(settings),
		semdex.WithProgress(c.App.ErrWriter),
	)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	model, err := ws.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	opts := vectors.Options{
		Overwrite:            c.Bool("overwrite"),
		DryRun:               c.Bool("dry-run"),
		SkipTables:           c.Bool("skip-tables"),
		SkipViews:            c.Bool("skip-views"),
		SkipStoredProcedures: c.Bool("skip-stored-procedures"),
		ObjectType:           c.String("object-type"),
		SchemaName:           c.String("schema"),
		ObjectName:           c.String("object-name"),
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Model: %s (%s)\n", model.Name, ws.ModelPath())
	fmt.Fprintf(out, "Embedding: %s at %s\n", settings.Embedding.Model, settings.Embedding.Host)
	fmt.Fprintln(out)

	result, err := ws.SynchronizeDetailed(ctx, model, opts)
	if result != nil {
		if opts.DryRun {
			for _, p := range result.Planned {
				fmt.Fprintf(out, "would embed %-40s %s\n", p.Ref.String(), p.Reason)
			}
		}
		fmt.Fprintf(out, "Processed: %d, skipped: %d, failed: %d\n", result.Processed, result.Skipped, result.Failed)
	}
	if err != nil {
		return fmt.Errorf("vector generation failed: %w", err)
	}
	return nil
}

func applyOverrides(c *cli.Context, s *config.Settings) {
	if c.IsSet("embedding-provider") {
		s.Embedding.Provider = c.String("embedding-provider")
	}
	if c.IsSet("embedding-host") {
		s.Embedding.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		s.Embedding.Model = c.String("embedding-model")
	}
	if c.IsSet("workers") {
		s.Synchronization.Workers = c.Int("workers")
	}
	if c.IsSet("report-interval") {
		s.Synchronization.ReportInterval = c.Int("report-interval")
	}
	if c.IsSet("max-retries") {
		s.Synchronization.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		s.Synchronization.RetryDelay = c.Duration("retry-delay")
	}
	if c.IsSet("normalize") {
		s.Synchronization.Normalize = c.Bool("normalize")
	}
}

func showModelCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	ws, err := semdex.Open(ctx, c.String("project"))
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	model, err := ws.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	statuses, err := ws.EmbeddingStatus(ctx, model)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Model: %s\n", model.Name)
	if model.Source != "" {
		fmt.Fprintf(out, "Source: %s\n", model.Source)
	}
	fmt.Fprintf(out, "Path: %s\n", ws.ModelPath())
	fmt.Fprintf(out, "Strategy: %s\n\n", ws.Settings().SemanticModel.PersistenceStrategy)

	var current int
	for _, s := range statuses {
		state := "missing"
		switch {
		case s.Current:
			state = "current"
			current++
		case s.Embedded:
			state = "stale"
		}
		fmt.Fprintf(out, "%-50s %s\n", s.Ref.String(), state)
	}
	fmt.Fprintf(out, "\n%d entities, %d with current embeddings\n", len(statuses), current)
	return nil
}

func cacheStatsCommand(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	loads := c.Int("loads")
	if loads <= 0 {
		return fmt.Errorf("loads must be greater than 0")
	}

	ws, err := semdex.Open(ctx, c.String("project"))
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	start := time.Now()
	for range loads {
		if _, err := ws.LoadModel(ctx); err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}
	}
	elapsed := time.Since(start)

	stats := ws.Repository().CacheStats()
	out := c.App.Writer
	fmt.Fprintf(out, "Loads:    %d in %s\n", loads, elapsed.Round(time.Microsecond))
	fmt.Fprintf(out, "Entries:  %d active, %d expired, %d total\n", stats.Active, stats.Expired, stats.Total)
	fmt.Fprintf(out, "Hits:     %d\n", stats.Hits)
	fmt.Fprintf(out, "Misses:   %d\n", stats.Misses)
	fmt.Fprintf(out, "Hit rate: %.2f\n", stats.HitRate)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
