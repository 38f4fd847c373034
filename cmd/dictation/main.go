// Dictation serves listening-practice decks built from YouTube captions.
//
// It fetches a video's English subtitle track with yt-dlp, cleans it
// into practice segments, and grades typed attempts. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one, defaults apply.
//
// Usage:
//
//	dictation serve                     Start the web and API server
//	dictation fetch [url|id]            Print practice segments for a video
//	dictation prefetch <id|channel>...  Warm the cue cache
//	dictation score <reference> <text>  Grade an attempt
//	dictation init [dir]                Write an example config.yaml
//	dictation doctor                    Check yt-dlp installation
//	dictation version                   Print version and build information
//	dictation -o json version           Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/dictation/internal/buildinfo"
	"github.com/nugget/dictation/internal/config"
	"github.com/nugget/dictation/internal/cuecache"
	"github.com/nugget/dictation/internal/media"
	"github.com/nugget/dictation/internal/practice"
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand rather than
// with the flag package, whose package-level state prevents calling run
// concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "fetch":
		input := ""
		if len(cmdArgs) > 0 {
			input = cmdArgs[0]
		}
		return runFetch(ctx, stdout, stderr, configPath, outputFmt, input)
	case "prefetch":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: dictation prefetch <url|id|channel>...")
		}
		return runPrefetch(ctx, stdout, stderr, configPath, cmdArgs)
	case "score":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: dictation score <reference> <attempt>")
		}
		return runScore(stdout, outputFmt, cmdArgs[0], cmdArgs[1])
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "doctor":
		return runDoctor(ctx, stdout, stderr, configPath, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Dictation - listening practice from YouTube captions")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: dictation [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                     Start the web and API server")
	fmt.Fprintln(w, "  fetch [url|id]            Print practice segments (default: clipboard)")
	fmt.Fprintln(w, "  prefetch <id|channel>...  Warm the cue cache")
	fmt.Fprintln(w, "  score <reference> <text>  Grade a dictation attempt")
	fmt.Fprintln(w, "  init [dir]                Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  doctor                    Check yt-dlp installation and updates")
	fmt.Fprintln(w, "  version                   Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/dictation/config.yaml, /etc/dictation/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file. An explicit
// path must exist; when nothing is found in the default locations the
// built-in defaults are used and the returned path is empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if errors.Is(err, config.ErrNotFound) {
		return config.Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// newLogger builds the configured logger. Level was validated by
// config.Validate, so a parse failure falls back to info.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// stack is the fetch-and-normalize pipeline shared by the commands.
type stack struct {
	client *media.Client
	store  *cuecache.Store
	source practice.CueSource
}

// newStack wires the yt-dlp client behind the cue cache when the cache
// is enabled. Close releases the cache database.
func newStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	client := media.New(media.Config{
		YtDlpPath:      cfg.Media.YtDlpPath,
		CookiesFile:    cfg.Media.CookiesFile,
		Language:       cfg.Media.Language,
		Timeout:        cfg.Media.Timeout(),
		MaxOutputBytes: cfg.Media.MaxOutputBytes,
	}, logger)

	st := &stack{client: client, source: client}
	if !cfg.Cache.Enabled {
		return st, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	store, err := cuecache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open cue cache %s: %w", cfg.Cache.Path, err)
	}
	st.store = store
	st.source = cuecache.NewSource(store, client, cfg.Cache.TTL(), logger)
	logger.Debug("cue cache opened", "path", cfg.Cache.Path, "ttl", cfg.Cache.TTL())
	return st, nil
}

func (s *stack) Close() {
	if s.store != nil {
		s.store.Close()
	}
}

// practiceConfig maps file configuration onto the practice service.
func practiceConfig(cfg *config.Config) practice.Config {
	return practice.Config{
		MinSegmentSeconds: cfg.Pipeline.MinSegmentSeconds,
		FetchesPerMinute:  cfg.Media.FetchesPerMinute,
		FetchBurst:        cfg.Media.Concurrency,
	}
}
