package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/deskboard/internal/adapters/storage/gormstore"
	"github.com/hylla/deskboard/internal/adapters/storage/sqlite"
	"github.com/hylla/deskboard/internal/app"
	"github.com/hylla/deskboard/internal/config"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/platform"
	"github.com/spf13/cobra"
)

// version is set via ldflags at build time.
var version = "dev"

// rootOptions carries the global flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	actor      string
}

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{appName: platform.DefaultAppName}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("DESKBOARD_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("DESKBOARD_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}
	opts.actor = strings.TrimSpace(os.Getenv("DESKBOARD_ACTOR"))
	if opts.actor == "" {
		opts.actor = strings.TrimSpace(os.Getenv("USER"))
	}

	cmd := &cobra.Command{
		Use:           "deskboard",
		Short:         "Hierarchical work-item board",
		Long:          "deskboard keeps a forest of work items ordered, cycle-free, and rolled up from the bottom.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML (env DESKBOARD_CONFIG)")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database (env DESKBOARD_DB_PATH)")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.actor, "actor", opts.actor, "name recorded on history entries (env DESKBOARD_ACTOR)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newPathsCmd(opts))
	cmd.AddCommand(newTreeCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newEditCmd(opts))
	cmd.AddCommand(newMoveCmd(opts))
	cmd.AddCommand(newParentsCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newImportCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskboard %s\n", version)
		},
	}
}

func newPathsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved config, data, and log locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := opts.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "app: %s\n", opts.appName)
			fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			fmt.Fprintf(out, "config: %s\n", opts.resolveConfigPath(paths))
			fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			fmt.Fprintf(out, "db: %s\n", opts.resolveDBPath(paths))
			fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func (o *rootOptions) paths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{AppName: o.appName, DevMode: o.devMode})
}

func (o *rootOptions) resolveConfigPath(paths platform.Paths) string {
	if p := strings.TrimSpace(o.configPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("DESKBOARD_CONFIG")); p != "" {
		return p
	}
	return paths.ConfigPath
}

func (o *rootOptions) resolveDBPath(paths platform.Paths) string {
	if p := strings.TrimSpace(o.dbPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("DESKBOARD_DB_PATH")); p != "" {
		return p
	}
	return paths.DBPath
}

// session is one opened backend plus the service layered over it.
type session struct {
	svc    *app.Service
	logger *runtimeLogger
	close  func() error
}

// withSession loads config, opens the configured store, runs fn, and releases everything.
func (o *rootOptions) withSession(cmd *cobra.Command, fn func(context.Context, *app.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.actor != "" {
		ctx = app.WithActor(ctx, app.Actor{ID: o.actor, Type: domain.ActorTypeUser})
	}
	sess, err := o.open(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	runErr := fn(ctx, sess.svc)
	return errors.Join(runErr, sess.close())
}

func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*session, error) {
	paths, err := o.paths()
	if err != nil {
		return nil, err
	}
	configPath := o.resolveConfigPath(paths)
	dbPath := o.resolveDBPath(paths)
	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if strings.TrimSpace(o.dbPath) != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.CommitTimeout()
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	policy, err := app.ParseQueuePolicy(string(cfg.Reorder.QueuePolicy))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	repo, closeRepo, err := openRepository(cfg.Database)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	logger.Debug("store opened", "driver", cfg.Database.Driver, "commit_timeout", timeout, "queue_policy", policy)

	svc := app.NewService(repo, uuid.NewString, time.Now, app.ServiceConfig{
		CommitTimeout: timeout,
		QueuePolicy:   policy,
		Logger:        logger,
	})
	sess := &session{
		svc:    svc,
		logger: logger,
		close: func() error {
			return errors.Join(closeRepo(), logger.Close())
		},
	}
	if err := svc.Load(ctx); err != nil {
		_ = sess.close()
		return nil, fmt.Errorf("load work items: %w", err)
	}
	return sess, nil
}

// openRepository returns the persistence collaborator for the configured driver.
func openRepository(cfg config.DatabaseConfig) (app.Repository, func() error, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		store, err := gormstore.Connect(cfg.MySQL.User, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mysql: %w", err)
		}
		return store, store.Close, nil
	default:
		repo, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return repo, repo.Close, nil
	}
}

// parseBoolEnv reports the parsed value and whether the variable was set to a valid bool.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
