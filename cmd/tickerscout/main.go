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
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/tickerscout"
	"github.com/poiesic/tickerscout/ai"
	"github.com/poiesic/tickerscout/core"
	"github.com/poiesic/tickerscout/embedding"
	"github.com/poiesic/tickerscout/observability"
	"github.com/poiesic/tickerscout/search"
	"github.com/poiesic/tickerscout/storage/postgres"
)

const metricsServerKey = "metrics-server"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tickerscout",
		Usage: "Semantic search over a company catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "database-url",
				Aliases:  []string{"d"},
				Usage:    "Catalog DSN (file:path.db for SQLite, postgres://... for PostgreSQL)",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "API key for the embedding service",
				EnvVars: []string{"OPENAI_API_KEY"},
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
				Value: ai.DefaultEmbeddingHost,
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
				Value: ai.DefaultEmbeddingModel,
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory for the query embedding cache (disabled when empty)",
			},
			&cli.IntFlag{
				Name:  "ivfflat-probes",
				Usage: "IVFFlat lists scanned per PostgreSQL query; 0 scans every list (exact)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return startMetrics(c)
		},
		After: stopMetrics,
		Commands: []*cli.Command{
			{
				Name:   "embed",
				Usage:  "Regenerate embeddings for every company with a business summary",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of companies embedded concurrently",
						Value: embedding.DefaultBatchSize,
					},
					&cli.DurationFlag{
						Name:  "batch-delay",
						Usage: "Pause between batches",
						Value: embedding.DefaultBatchDelay,
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Maximum attempts per embedding call",
						Value: embedding.DefaultMaxAttempts,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: embedding.DefaultRetryBaseDelay,
					},
					&cli.BoolFlag{
						Name:  "progress",
						Usage: "Print progress to stderr",
						Value: true,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search companies by description and filters",
				ArgsUsage: "[query...]",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sector",
						Usage: "Only companies in this sector",
					},
					&cli.Float64Flag{
						Name:  "min-market-cap",
						Usage: "Minimum market cap (inclusive)",
					},
					&cli.Float64Flag{
						Name:  "max-market-cap",
						Usage: "Maximum market cap (inclusive)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: core.DefaultLimit,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "sectors",
				Usage:  "List the distinct sectors in the catalog",
				Action: sectorsCommand,
			},
			{
				Name:   "init-index",
				Usage:  "Drop and recreate the vector index",
				Action: initIndexCommand,
			},
		},
	}
}

// openDatabase opens the catalog. When withProvider is set the AI
// configuration is validated first so a missing key fails before any
// connection is made.
func openDatabase(c *cli.Context, withProvider bool) (*tickerscout.Database, error) {
	var opts []tickerscout.DatabaseOption
	if withProvider {
		aiConfig := ai.NewConfig(
			ai.WithAPIKey(c.String("openai-api-key")),
			ai.WithEmbeddingHost(c.String("embedding-host")),
			ai.WithEmbeddingModel(c.String("embedding-model")),
		)
		if err := aiConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid AI configuration: %w", err)
		}
		opts = append(opts, tickerscout.WithAIConfig(aiConfig))
		if dir := c.String("cache-dir"); dir != "" {
			opts = append(opts, tickerscout.WithCacheDir(dir))
		}
	}

	if probes := c.Int("ivfflat-probes"); probes > 0 {
		opts = append(opts, tickerscout.WithPostgresConfig(postgres.Config{Probes: probes}))
	}

	db, err := tickerscout.Open(c.Context, c.String("database-url"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func embedCommand(c *cli.Context) error {
	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-attempts") <= 0 {
		return fmt.Errorf("max-attempts must be greater than 0")
	}

	db, err := openDatabase(c, true)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []embedding.Option{
		embedding.WithBatchSize(c.Int("batch-size")),
		embedding.WithBatchDelay(c.Duration("batch-delay")),
		embedding.WithMaxAttempts(c.Int("max-attempts")),
		embedding.WithRetryBaseDelay(c.Duration("retry-delay")),
	}
	if c.Bool("progress") {
		opts = append(opts, embedding.WithProgressWriter(c.App.ErrWriter))
	}

	pipeline, err := db.NewEmbeddingPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	fmt.Fprintf(c.App.ErrWriter, "Backend: %s\n", db.Backend())
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	report, err := pipeline.Run(c.Context)
	if report != nil {
		fmt.Fprintln(c.App.Writer, report)
	}
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	filters := core.Filters{
		Sector: c.String("sector"),
		Limit:  c.Int("limit"),
	}
	if c.IsSet("min-market-cap") {
		v := c.Float64("min-market-cap")
		filters.MinMarketCap = &v
	}
	if c.IsSet("max-market-cap") {
		v := c.Float64("max-market-cap")
		filters.MaxMarketCap = &v
	}

	var query *string
	if c.NArg() > 0 {
		q := strings.Join(c.Args().Slice(), " ")
		query = &q
	}

	db, err := openDatabase(c, true)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	results, err := searcher.Search(c.Context, query, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.Bool("json") {
		return writeJSON(c, results)
	}
	return writeTable(c, results)
}

type jsonResult struct {
	Symbol     string   `json:"symbol"`
	Name       string   `json:"name"`
	Sector     string   `json:"sector"`
	Industry   string   `json:"industry"`
	MarketCap  *float64 `json:"marketCap"`
	Similarity float32  `json:"similarity"`
}

func writeJSON(c *cli.Context, results *search.Results) error {
	out := struct {
		Tier    string       `json:"tier"`
		Results []jsonResult `json:"results"`
	}{
		Tier:    results.Tier.String(),
		Results: make([]jsonResult, 0, len(results.Items)),
	}
	for _, r := range results.Items {
		out.Results = append(out.Results, jsonResult{
			Symbol:     r.Company.Symbol,
			Name:       r.Company.ShortName,
			Sector:     r.Company.Sector,
			Industry:   r.Company.Industry,
			MarketCap:  r.Company.MarketCap,
			Similarity: r.Similarity,
		})
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeTable(c *cli.Context, results *search.Results) error {
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tSECTOR\tMARKET CAP\tSIMILARITY")
	for _, r := range results.Items {
		marketCap := "-"
		if r.Company.MarketCap != nil {
			marketCap = fmt.Sprintf("%.0f", *r.Company.MarketCap)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\n",
			r.Company.Symbol, r.Company.ShortName, r.Company.Sector, marketCap, r.Similarity)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "%d results (%s)\n", len(results.Items), results.Tier)
	return nil
}

func sectorsCommand(c *cli.Context) error {
	db, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer db.Close()

	sectors, err := db.Catalog().Sectors(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list sectors: %w", err)
	}
	for _, s := range sectors {
		fmt.Fprintln(c.App.Writer, s)
	}
	return nil
}

func initIndexCommand(c *cli.Context) error {
	db, err := openDatabase(c, false)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Index().Initialize(c.Context); err != nil {
		return fmt.Errorf("failed to initialize index: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Initialized %s vector index\n", db.Index().Type())
	return nil
}

func startMetrics(c *cli.Context) error {
	addr := c.String("metrics-addr")
	if addr == "" {
		return nil
	}
	srv := observability.NewServer(addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metricsServerKey] = srv
	slog.Info("serving metrics", "addr", addr)
	return nil
}

func stopMetrics(c *cli.Context) error {
	srv, ok := c.App.Metadata[metricsServerKey].(*http.Server)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
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
