package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alphabot-ai/fmylife/internal/client"
	"github.com/alphabot-ai/fmylife/internal/config"
	"github.com/alphabot-ai/fmylife/internal/xmlbackend"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	sandbox    bool
	backend    string
	lang       string
	key        string
	baseURL    string
	verbose    bool

	file    config.File
	cfg     config.Client
	account *client.Account
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "fml",
		Short: "Read, vote on and post FMyLife stories",
		Long: `fml talks to the FMyLife API.

Settings come from ~/.fml/config.toml, then FML_* environment variables,
then flags. Logging in stores the session token in the same file.

Examples:
  fml latest
  fml top --interval week
  fml story 42
  fml login ann
  fml submit --category love "Today, my date brought her mother. FML"`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default ~/.fml/config.toml)")
	flags.BoolVar(&a.sandbox, "sandbox", false, "Use the sandbox host")
	flags.StringVar(&a.backend, "backend", "", "XML backend: stdlib, xmlquery, etree or nethtml")
	flags.StringVar(&a.lang, "lang", "", "Story language")
	flags.StringVar(&a.key, "key", "", "API key")
	flags.StringVar(&a.baseURL, "base-url", "", "Override the service URL, e.g. a local fmlsandbox")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log requests to stderr")

	root.AddCommand(
		newLatestCmd(a),
		newRankingCmd(a, "top", "Best rated stories"),
		newRankingCmd(a, "flop", "Worst rated stories"),
		newCategoryCmd(a),
		newRandomCmd(a),
		newStoryCmd(a),
		newUnseenCmd(a),
		newFavoritesCmd(a),
		newSearchCmd(a),
		newSubmitCmd(a),
		newVoteCmd(a),
		newCommentCmd(a),
		newDevCmd(a),
		newModCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
	)
	return root
}

// setup resolves configuration and builds the session.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.configPath = path
	}
	file, err := config.ReadFile(a.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.LoadClient(file)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("sandbox") {
		cfg.Sandbox = a.sandbox
	}
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	if flags.Changed("lang") {
		cfg.Language = a.lang
	}
	if flags.Changed("key") {
		cfg.APIKey = a.key
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = a.baseURL
	}

	name, err := xmlbackend.ParseName(cfg.Backend)
	if err != nil {
		return err
	}
	if err := xmlbackend.Select(name); err != nil {
		return err
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	tr := client.NewHTTPTransport().WithThrottle(cfg.RatePerSec, cfg.RateBurst)
	tr.HTTPClient.Timeout = cfg.Timeout
	tr.BaseURL = cfg.BaseURL
	tr.Logger = logger

	a.file = file
	a.cfg = cfg
	a.account = client.New(cfg.APIKey,
		client.WithLanguage(cfg.Language),
		client.WithSandbox(cfg.Sandbox),
		client.WithTransport(tr),
		client.WithLogger(logger),
		client.WithToken(file.Session.Token),
	)
	return nil
}

// saveSession persists the account's token, or clears it when empty.
func (a *app) saveSession(username string) error {
	a.file.Session = config.Session{Username: username, Token: a.account.Token()}
	if a.file.Session.Token == "" {
		a.file.Session = config.Session{}
	}
	return config.WriteFile(a.configPath, a.file)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
