// Command harvester discovers, scrapes and classifies hackathon projects.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hackathon-harvester/internal/app"
	"github.com/JakeFAU/hackathon-harvester/internal/config"
	"github.com/JakeFAU/hackathon-harvester/internal/discover"
	"github.com/JakeFAU/hackathon-harvester/internal/logging"
	"github.com/JakeFAU/hackathon-harvester/internal/pipeline"
)

func main() {
	if err := newCLI(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}

func listingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "listing search query (defaults to source.query)",
		},
		&cli.IntFlag{
			Name:  "max-pages",
			Usage: "listing pages to walk (defaults to source.max_pages)",
		},
	}
}

func newCLI(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "harvester",
		Usage:     "Scrape hackathon project pages and label them by domain",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a config file (yaml, json or toml)",
				EnvVars: []string{"HARVESTER_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Discover, scrape new projects and classify unlabelled ones",
				Flags: append(listingFlags(),
					&cli.BoolFlag{Name: "skip-classify", Usage: "stop after scraping"},
				),
				Action: runCommand,
			},
			{
				Name:   "discover",
				Usage:  "Print project URLs found on the listing pages",
				Flags:  listingFlags(),
				Action: discoverCommand,
			},
			{
				Name:  "scrape",
				Usage: "Scrape the given project URLs",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "url", Aliases: []string{"u"}, Usage: "project URL (repeatable)", Required: true},
					&cli.BoolFlag{Name: "force", Usage: "re-scrape URLs that are already stored"},
				},
				Action: scrapeCommand,
			},
			{
				Name:   "classify",
				Usage:  "Classify every stored project without domains",
				Action: classifyCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
			},
		},
	}
}

// withApp loads configuration, builds the services and runs fn under a
// context canceled by SIGINT or SIGTERM.
func withApp(c *cli.Context, check func(config.Config) error, fn func(context.Context, config.Config, *app.App) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(cfg); err != nil {
			return err
		}
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer a.Close()
	return fn(ctx, cfg, a)
}

func options(c *cli.Context, cfg config.Config) pipeline.Options {
	opts := pipeline.Options{
		Query:        cfg.Source.Query,
		MaxPages:     cfg.Source.MaxPages,
		SkipClassify: c.Bool("skip-classify"),
	}
	if q := c.String("query"); q != "" {
		opts.Query = q
	}
	if c.IsSet("max-pages") {
		opts.MaxPages = c.Int("max-pages")
	}
	return opts
}

func runCommand(c *cli.Context) error {
	return withApp(c, nil, func(ctx context.Context, cfg config.Config, a *app.App) error {
		report, err := a.Pipeline().Run(ctx, options(c, cfg))
		if werr := writeJSON(c.App.Writer, report); werr != nil {
			return werr
		}
		return err
	})
}

func discoverCommand(c *cli.Context) error {
	return withApp(c, nil, func(ctx context.Context, cfg config.Config, a *app.App) error {
		opts := options(c, cfg)
		return printURLs(ctx, c.App.Writer, a.Discoverer().URLs(ctx, opts.Query, opts.MaxPages), a.Logger())
	})
}

// printURLs writes each distinct URL once. Listing page failures are logged
// and skipped; any other error ends the command.
func printURLs(ctx context.Context, w io.Writer, urls iter.Seq2[string, error], logger *zap.Logger) error {
	seen := make(map[string]struct{})
	for u, err := range urls {
		if err != nil {
			var pageErr *discover.PageError
			if ctx.Err() != nil || !errors.As(err, &pageErr) {
				return err
			}
			logger.Warn("Listing page failed",
				zap.Int("page", pageErr.Page),
				zap.String("url", pageErr.URL),
				zap.Error(pageErr.Err),
			)
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		fmt.Fprintln(w, u)
	}
	return nil
}

func scrapeCommand(c *cli.Context) error {
	return withApp(c, nil, func(ctx context.Context, _ config.Config, a *app.App) error {
		report, err := a.Pipeline().Scrape(ctx, c.StringSlice("url"), c.Bool("force"))
		if werr := writeJSON(c.App.Writer, report); werr != nil {
			return werr
		}
		return err
	})
}

func classifyCommand(c *cli.Context) error {
	return withApp(c, config.Config.RequireClassifierCredentials, func(ctx context.Context, _ config.Config, a *app.App) error {
		report, err := a.Pipeline().Classify(ctx)
		if werr := writeJSON(c.App.Writer, report); werr != nil {
			return werr
		}
		return err
	})
}

func serveCommand(c *cli.Context) error {
	return withApp(c, nil, func(ctx context.Context, _ config.Config, a *app.App) error {
		return a.Serve(ctx)
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
