package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/trailofbits/cargo-unmaintained/pkg/archival"
	"github.com/trailofbits/cargo-unmaintained/pkg/diskcache"
	"github.com/trailofbits/cargo-unmaintained/pkg/ignorelist"
	"github.com/trailofbits/cargo-unmaintained/pkg/manifest"
	"github.com/trailofbits/cargo-unmaintained/pkg/registryidx"
	"github.com/trailofbits/cargo-unmaintained/pkg/reposvc"
	"github.com/trailofbits/cargo-unmaintained/pkg/scheduler"
	"github.com/trailofbits/cargo-unmaintained/pkg/sink"
	"github.com/trailofbits/cargo-unmaintained/pkg/tokensrc"
)

var (
	manifestPath    string
	maxAgeDays      int
	failFast        bool
	noCache         bool
	cacheDurationHr int
	jsonOutput      bool
	githubToken     string
	noExitCode      bool
	concurrency     int
	colorMode       string
	ignoreFlags     []string
	purge           bool
	saveToken       string

	rootCmd = &cobra.Command{
		Use:   "cargo-unmaintained",
		Short: "Find unmaintained dependencies in a Cargo project",
		Long: `cargo-unmaintained analyzes a Cargo project's resolved dependency graph
and flags packages whose canonical repository is archived, missing, no
longer names the package, or is stale with outdated direct dependencies.`,
		RunE: runAudit,
	}
)

func Execute() error {
	setupLogging()
	return rootCmd.Execute()
}

func setupLogging() {
	level := slog.LevelWarn
	if os.Getenv("CARGO_UNMAINTAINED_DEBUG") != "" {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.Flags().StringVar(&manifestPath, "manifest-path", "Cargo.toml", "path to the project's Cargo.toml")
	rootCmd.Flags().IntVar(&maxAgeDays, "max-age", 365, "days since last commit beyond which a repository is considered stale")
	rootCmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining work as soon as one unmaintained package is found")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the on-disk cache entirely")
	rootCmd.Flags().IntVar(&cacheDurationHr, "cache-duration", 24, "registry index memoization TTL, in hours")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable output")
	rootCmd.Flags().StringVar(&githubToken, "github-token", "", "GitHub token for the archival check (overrides GITHUB_TOKEN/GITHUB_TOKEN_PATH)")
	rootCmd.Flags().BoolVar(&noExitCode, "no-exit-code", false, "always exit 0 unless a fatal error occurred")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 10, "maximum number of packages classified concurrently")
	rootCmd.Flags().StringVar(&colorMode, "color", "auto", "when to colorize human output: always, auto, never")
	rootCmd.Flags().StringArrayVar(&ignoreFlags, "ignore", nil, "package name to exclude from analysis (repeatable)")
	rootCmd.Flags().BoolVar(&purge, "purge", false, "delete the entire on-disk cache and exit")
	rootCmd.Flags().StringVar(&saveToken, "save-token", "", "save a GitHub token to the per-user config directory and exit")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if purge {
		if err := diskcache.Purge(); err != nil {
			return fmt.Errorf("purging cache: %w", err)
		}
		fmt.Println("cache purged")
		return nil
	}

	if saveToken != "" {
		if err := tokensrc.Save(saveToken); err != nil {
			return fmt.Errorf("saving token: %w", err)
		}
		fmt.Println("token saved")
		return nil
	}

	graph, err := manifest.Load(ctx, manifestPath)
	if err != nil {
		return fatal(fmt.Errorf("loading project metadata: %w", err))
	}

	ignore, err := ignorelist.Load(graph.ProjectPath, ignoreFlags)
	if err != nil {
		return fatal(fmt.Errorf("loading ignore list: %w", err))
	}

	var cacheRoot string
	if noCache {
		// A fresh, unshared temp directory bypasses both reads and writes
		// of the persistent cache: nothing is memoized going in, and
		// everything materialized here is discarded once the audit has
		// rendered its report. A fatal error exits before that cleanup and
		// leaves the directory in place.
		cacheRoot, err = os.MkdirTemp("", "cargo-unmaintained-nocache-*")
		if err != nil {
			return fatal(fmt.Errorf("preparing ephemeral cache dir: %w", err))
		}
		defer os.RemoveAll(cacheRoot)
		if err := os.MkdirAll(cacheRoot+string(os.PathSeparator)+"repos", 0o755); err != nil {
			return fatal(fmt.Errorf("preparing ephemeral cache dir: %w", err))
		}
	} else {
		cacheRoot, err = diskcache.Root()
		if err != nil {
			return fatal(fmt.Errorf("resolving cache root: %w", err))
		}
	}

	index, err := registryidx.Open(ctx, cacheRoot, "", time.Duration(cacheDurationHr)*time.Hour)
	if err != nil {
		return fatal(fmt.Errorf("opening registry index: %w", err))
	}

	token := githubToken
	if token == "" {
		token = tokensrc.Discover()
	}
	oracle := archival.New(token)

	store := reposvc.New(cacheRoot)

	coord := scheduler.NewCoordinator(index, store, oracle, concurrency, time.Duration(maxAgeDays)*24*time.Hour)
	coord.FailFast = failFast

	candidates := scheduler.Candidates(graph, ignore)
	report, err := coord.Run(ctx, graph, candidates)
	if err != nil {
		return fatal(fmt.Errorf("classification run failed: %w", err))
	}

	if jsonOutput {
		if err := sink.RenderJSON(os.Stdout, report); err != nil {
			return fatal(err)
		}
	} else {
		useColor := colorMode == "always" || (colorMode == "auto" && isTerminal(os.Stdout))
		if err := sink.RenderHuman(os.Stdout, report, useColor); err != nil {
			return fatal(err)
		}
	}

	code := sink.ExitCode(report, false, noExitCode)
	if code != 0 {
		if noCache {
			// os.Exit skips deferred calls.
			os.RemoveAll(cacheRoot)
		}
		os.Exit(code)
	}
	return nil
}

func fatal(err error) error {
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(2)
	return err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
