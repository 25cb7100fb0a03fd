// Command ghos browses GitHub repositories as a virtual filesystem and
// publishes batches of staged edits as single commits.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"ghos/internal/commit"
	"ghos/internal/config"
	"ghos/internal/errors"
	"ghos/internal/github"
	"ghos/internal/gitstore"
	"ghos/internal/logging"
	"ghos/internal/remote"
	"ghos/internal/session"
	"ghos/internal/staging"
	"ghos/internal/workspace"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds everything a command needs. It is built once per invocation.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *badger.DB
	sessions *session.Manager
	store    *staging.Store
	backend  remote.Backend
	local    *gitstore.Backend // set for the local backend only
	user     string
}

var (
	configPath string
	logLevel   string
	current    *app
)

var rootCmd = &cobra.Command{
	Use:   "ghos",
	Short: "Browse and edit GitHub repositories like a filesystem",
	Long: `ghos maps your repositories onto a virtual filesystem. Edits are staged
locally and published together as a single commit per repository.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

func newApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(cfg.Database.Path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		sessions: session.NewManager(db, logger),
		store:    staging.NewStore(db, logger),
	}

	token := cfg.GitHub.Token
	a.user = cfg.GitHub.User
	if account, err := a.sessions.Active(); err == nil {
		a.user, token = account.Username, account.AccessToken
	}

	switch cfg.Backend {
	case config.BackendLocal:
		local, err := gitstore.Open(cfg.Local.Root, gitstore.WithLogger(logger))
		if err != nil {
			db.Close()
			return nil, err
		}
		a.local, a.backend = local, local
		if a.user == "" {
			a.user = "local"
		}
	default:
		client, err := github.New(github.Options{
			BaseURL:      cfg.GitHub.BaseURL,
			Token:        token,
			Timeout:      cfg.Timeout(),
			CacheSize:    cfg.Cache.Size,
			ReposPerPage: cfg.GitHub.ReposPerPage,
			Logger:       logger,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
		a.backend = client
	}

	logger.Debug("ghos started",
		zap.String("backend", cfg.Backend),
		zap.String("user", a.user),
		zap.String("db", cfg.Database.Path))
	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", zap.Error(err))
	}
	a.logger.Sync()
}

// workspace requires a known user since the virtual root lists their
// repositories.
func (a *app) workspace() (*workspace.Workspace, error) {
	if a.user == "" {
		return nil, errors.Unauthorized("not logged in; run ghos login")
	}
	return workspace.New(a.backend, a.store, a.db, a.user, a.logger), nil
}

func (a *app) engine() *commit.Engine {
	return commit.NewEngine(a.backend, a.store, a.logger, commit.Options{
		RetryOnConflict: a.cfg.Commit.RetryOnConflict,
		VerifyBase:      a.cfg.Commit.VerifyBase,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $GHOS_CONFIG or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	addFileCommands(rootCmd)
	addBranchCommands(rootCmd)
	addAccountCommands(rootCmd)
}

func main() {
	err := rootCmd.Execute()
	if current != nil {
		current.close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}
