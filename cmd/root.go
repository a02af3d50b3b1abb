// Package cmd defines and implements the CLI commands for the quotes executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/api"
	"github.com/JakeFAU/quotes-crawler/internal/app"
	"github.com/JakeFAU/quotes-crawler/internal/config"
	"github.com/JakeFAU/quotes-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	api.Service
	Migrate(ctx context.Context, reset bool) error
	Config() config.Config
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "Crawl quotes.net movie quotes and load them into a database.",
		Long: `quotes crawls the quotes.net movie catalog in resumable batches,
appending every movie page to a raw record log, and loads those records
into Postgres or SQLite keyed by (title, year, external id).`,
		SilenceUsage: true,

		// Build the application once config is known and before any RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			closeApp(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); QUOTES_* env vars override it")

	cmd.AddCommand(
		newCrawlCmd(),
		newLoadCmd(),
		newMigrateCmd(),
		newInfoCmd(),
		newRecordsCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run executes the CLI with args. Cobra skips PersistentPostRun when RunE
// fails, so the application is closed here on that path.
func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	executed, err := root.ExecuteContextC(ctx)
	if executed != nil {
		closeApp(executed)
	}
	return err
}

// closeApp closes the App stored on cmd, at most once.
func closeApp(cmd *cobra.Command) {
	ctx := cmd.Context()
	if ctx == nil {
		return
	}
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return
	}
	appInstance.Close()
	_ = appInstance.Logger().Sync()
	cmd.SetContext(context.WithValue(ctx, appKey, nil))
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
