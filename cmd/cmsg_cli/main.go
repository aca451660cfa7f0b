package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"cmsg_cli/pkg/clipboard"
	"cmsg_cli/pkg/config"
	"cmsg_cli/pkg/display"
	"cmsg_cli/pkg/gitdiff"
	"cmsg_cli/pkg/llm"
	"cmsg_cli/pkg/logging"
	"cmsg_cli/pkg/prompt"
	"cmsg_cli/pkg/usage"
	"cmsg_cli/pkg/version"
)

type options struct {
	copyToClipboard bool
	commit          bool
	yes             bool
	hint            string
	model           string
	verbose         bool
	dryRun          bool
	setKey          bool
	clearKey        bool
	stats           bool
	showVersion     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flag.BoolVar(&opts.copyToClipboard, "copy", false, "copy the generated message to the clipboard")
	flag.BoolVar(&opts.commit, "commit", false, "create the commit after confirmation")
	flag.BoolVar(&opts.yes, "yes", false, "skip the confirmation prompt")
	flag.StringVar(&opts.hint, "hint", "", "extra instruction for the model")
	flag.StringVar(&opts.model, "model", "", "override the configured model")
	flag.BoolVar(&opts.verbose, "verbose", false, "verbose logging to stderr")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "show the staged changes and prompt, call nothing")
	flag.BoolVar(&opts.setKey, "set-key", false, "store the API key and exit")
	flag.BoolVar(&opts.clearKey, "clear-key", false, "remove the stored API key and exit")
	flag.BoolVar(&opts.stats, "stats", false, "show usage totals and exit")
	flag.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flag.Parse()

	out := display.New()

	if opts.showVersion {
		fmt.Println(version.UserAgent())
		return 0
	}

	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		out.Error("failed to load config: %v", err)
		return 1
	}
	if opts.model != "" {
		cfg.Endpoint.Model = opts.model
	}
	if opts.dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		out.Error("invalid config: %v", err)
		return 1
	}

	logger, err := logging.Init(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		LogFile: cfg.LogFile,
		Verbose: opts.verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
	}

	credentials, err := config.NewCredentialStore(filepath.Dir(configPath), logger)
	if err != nil {
		out.Error("failed to open credential store: %v", err)
		return 1
	}

	switch {
	case opts.setKey:
		return runSetKey(credentials, out)
	case opts.clearKey:
		if err := credentials.Clear(); err != nil {
			out.Error("failed to clear API key: %v", err)
			return 1
		}
		out.Success("API key cleared")
		return 0
	case opts.stats:
		return runStats(out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runGenerate(ctx, cfg, configPath, credentials, opts, out, logger)
}

func runSetKey(credentials *config.CredentialStore, out *display.Renderer) int {
	fmt.Fprint(os.Stderr, "API key: ")
	key, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		out.Error("failed to read API key: %v", err)
		return 1
	}
	if err := credentials.SetAPIKey(string(key)); err != nil {
		out.Error("failed to store API key: %v", err)
		return 1
	}
	out.Success("API key stored")
	return 0
}

func runStats(out *display.Renderer) int {
	totals, err := usage.NewTracker(usage.DefaultPath()).Totals()
	if err != nil {
		out.Error("failed to read usage ledger: %v", err)
		return 1
	}
	out.UsageTotals(totals)
	return 0
}

func runGenerate(ctx context.Context, cfg config.Config, configPath string, credentials *config.CredentialStore, opts options, out *display.Renderer, logger *slog.Logger) int {
	workDir, err := os.Getwd()
	if err != nil {
		out.Error("failed to resolve working directory: %v", err)
		return 1
	}

	changes, err := gitdiff.StagedChanges(workDir, cfg.Commit.MaxDiffBytes)
	if err != nil {
		out.Error("%v", err)
		return 1
	}
	if changes.Empty() {
		out.Warning("nothing staged; stage changes with git add first")
		return 1
	}
	out.ChangeSummary(changes)

	branch := gitdiff.Branch(workDir)
	messages := prompt.Build(changes, prompt.Options{
		Conventional: cfg.Commit.Conventional,
		Hint:         opts.hint,
		Branch:       branch,
	})

	if cfg.DryRun {
		out.Info("dry run; the user prompt below would be sent to %s", cfg.Endpoint.Model)
		out.Message(messages[1].Content)
		return 0
	}

	client, err := buildClient(cfg, configPath, credentials, logger)
	if err != nil {
		out.Error("%v", err)
		return 1
	}
	tracker := usage.NewTracker(usage.DefaultPath())

	for {
		result, err := client.Generate(ctx, messages)
		if err != nil {
			return reportGenerateError(err, out)
		}
		if err := tracker.Add(result.Model, result.Usage); err != nil {
			logger.Warn("failed to record usage", "error", err)
		}

		message := strings.TrimSpace(result.Content)
		out.Message(message)

		action := "accept"
		if !opts.yes && interactive() {
			action, err = askAction(ctx)
			if err != nil {
				out.Error("%v", err)
				return 1
			}
		}

		switch action {
		case "regenerate":
			continue
		case "copy":
			return finish(message, true, false, workDir, out)
		case "quit":
			return 0
		default:
			return finish(message, opts.copyToClipboard || cfg.Commit.CopyToClipboard, opts.commit, workDir, out)
		}
	}
}

func buildClient(cfg config.Config, configPath string, credentials *config.CredentialStore, logger *slog.Logger) (*llm.Client, error) {
	profile, err := llm.ResolveEndpoint(cfg.Endpoint.APIURL, cfg.Endpoint.RequireAuth)
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv("CMSG_API_KEY")
	if apiKey == "" {
		apiKey, err = credentials.APIKey()
		if err != nil {
			return nil, err
		}
	}
	if profile.RequiresAuth && apiKey == "" {
		return nil, fmt.Errorf("%w: no API key; run cmsg -set-key or set CMSG_API_KEY", llm.ErrConfiguration)
	}

	transport := llm.NewHTTPTransport(apiKey, time.Duration(cfg.Endpoint.TimeoutSeconds)*time.Second, logger)
	transport.UserAgent = version.UserAgent()

	var seed *llm.DetectedParameters
	if params, ok := cfg.DetectedShape(profile.BaseURL, cfg.Endpoint.Model); ok {
		seed = &params
	}

	return llm.NewClient(transport, llm.ClientConfig{
		Profile:   profile,
		Model:     cfg.Endpoint.Model,
		MaxTokens: cfg.Endpoint.MaxTokens,
		Store:     config.NewShapeStore(configPath),
		Seed:      seed,
		Logger:    logger,
	}), nil
}

func reportGenerateError(err error, out *display.Renderer) int {
	switch {
	case errors.Is(err, context.Canceled):
		out.Warning("canceled")
	case errors.Is(err, llm.ErrAuthentication):
		out.Error("authentication failed; check the API key (cmsg -set-key)")
	case errors.Is(err, llm.ErrContextLength):
		out.Error("staged diff too large for the model; lower max_diff_bytes or stage less")
	case errors.Is(err, llm.ErrParameterDetection), errors.Is(err, llm.ErrSelfHealing):
		out.Error("endpoint rejected every request shape: %v", err)
	default:
		out.Error("generation failed: %v", err)
	}
	return 1
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// askAction reads one accept/copy/regenerate/quit choice.
func askAction(ctx context.Context) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(os.Stderr, "[a]ccept  [c]opy  [r]egenerate  [q]uit > ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read choice: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "a", "accept":
			return "accept", nil
		case "c", "copy":
			return "copy", nil
		case "r", "regenerate":
			return "regenerate", nil
		case "q", "quit":
			return "quit", nil
		}
	}
}

func finish(message string, copyMessage, commit bool, workDir string, out *display.Renderer) int {
	if copyMessage {
		if err := clipboard.Copy(message); err != nil {
			out.Warning("clipboard unavailable: %v", err)
		} else {
			out.Success("copied to clipboard")
		}
	}
	if commit {
		hash, err := gitdiff.Commit(workDir, message)
		if err != nil {
			out.Error("failed to commit: %v", err)
			return 1
		}
		short := hash
		if len(short) > 7 {
			short = short[:7]
		}
		out.Success("committed %s", short)
	}
	return 0
}
