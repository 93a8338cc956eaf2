package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tickflow/tickflow/pkg/config"
	"github.com/tickflow/tickflow/pkg/connector/sinks/console"
	"github.com/tickflow/tickflow/pkg/connector/sinks/postgres"
	"github.com/tickflow/tickflow/pkg/connector/sources/alpaca"
	"github.com/tickflow/tickflow/pkg/connector/sources/polymarket"
	"github.com/tickflow/tickflow/pkg/connector/sources/yahoo"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

var version = "0.1.0"

// feedFlags are shared by every feed subcommand.
type feedFlags struct {
	configFile string
	capacity   int
	logLevel   string
	useConsole bool
}

func (f *feedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "YAML config file overlaid on environment settings (supports ${VAR} substitution)")
	cmd.Flags().IntVar(&f.capacity, "capacity", 0, "Feed channel capacity (defaults to DATAFEED_CHANNEL_SIZE)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&f.useConsole, "console", false, "Log batches instead of writing to PostgreSQL")
}

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "tickflow",
		Short: "Tickflow - market data ingestion pipelines",
		Long: `Tickflow streams market data from external feeds into PostgreSQL.
Each subcommand runs one feed as a source/sink pipeline over a bounded
channel.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Tickflow v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newAlpacaCmd())
	root.AddCommand(newPolymarketCmd())
	root.AddCommand(newGammaCmd())
	root.AddCommand(newYahooCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAlpacaCmd() *cobra.Command {
	var flags feedFlags
	var bars, quotes, trades []string

	cmd := &cobra.Command{
		Use:   "alpaca",
		Short: "Stream Alpaca market data (bars, quotes, trades)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(&flags)
			if err != nil {
				return err
			}
			if len(bars) > 0 {
				cfg.Alpaca.Bars = bars
			}
			if len(quotes) > 0 {
				cfg.Alpaca.Quotes = quotes
			}
			if len(trades) > 0 {
				cfg.Alpaca.Trades = trades
			}
			if err := cfg.Alpaca.Validate(); err != nil {
				return err
			}
			return runFeed(cmd.Context(), cfg, &flags, alpaca.NewSource(cfg.Alpaca), postgres.NewAlpacaHandler())
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&bars, "bars", nil, "Symbols to subscribe for minute bars")
	cmd.Flags().StringSliceVar(&quotes, "quotes", nil, "Symbols to subscribe for quotes")
	cmd.Flags().StringSliceVar(&trades, "trades", nil, "Symbols to subscribe for trades")
	return cmd
}

func newPolymarketCmd() *cobra.Command {
	var flags feedFlags

	cmd := &cobra.Command{
		Use:   "polymarket",
		Short: "Fetch Polymarket CLOB market listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(&flags)
			if err != nil {
				return err
			}
			return runFeed(cmd.Context(), cfg, &flags, polymarket.NewCLOBSource(cfg.Polymarket), postgres.NewPolymarketHandler())
		},
	}
	flags.register(cmd)
	return cmd
}

func newGammaCmd() *cobra.Command {
	var flags feedFlags

	cmd := &cobra.Command{
		Use:   "polymarket-gamma",
		Short: "Fetch active Polymarket markets from the Gamma API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(&flags)
			if err != nil {
				return err
			}
			if cfg.Polymarket.EndDateMin == "" {
				return fmt.Errorf("POLY_END_DATE_MIN must be set")
			}
			return runFeed(cmd.Context(), cfg, &flags, polymarket.NewGammaSource(cfg.Polymarket), postgres.NewGammaHandler())
		},
	}
	flags.register(cmd)
	return cmd
}

func newYahooCmd() *cobra.Command {
	var flags feedFlags

	cmd := &cobra.Command{
		Use:   "yahoo",
		Short: "Fetch quarterly fundamentals for a symbol list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(&flags)
			if err != nil {
				return err
			}
			if err := cfg.Yahoo.Validate(); err != nil {
				return err
			}
			source, err := yahoo.NewSource(cfg.Yahoo)
			if err != nil {
				return err
			}
			return runFeed(cmd.Context(), cfg, &flags, source, postgres.NewYahooHandler())
		},
	}
	flags.register(cmd)
	return cmd
}

// setup initializes logging and resolves the feed config: environment
// first, then the optional YAML file overlays the fields it names, then
// per-command flags win.
func setup(flags *feedFlags) (*config.App, error) {
	if err := logger.Init(logger.Config{Level: flags.logLevel, Encoding: "json"}); err != nil {
		return nil, err
	}
	cfg := config.FromEnv()
	if flags.configFile != "" {
		if err := config.LoadFile(flags.configFile, cfg); err != nil {
			return nil, err
		}
	}
	if flags.capacity > 0 {
		cfg.ChannelCapacity = flags.capacity
	}
	return cfg, nil
}

// runFeed wires source and sink into a feed and blocks until both tasks
// finish or the process receives an interrupt.
func runFeed[M any](ctx context.Context, cfg *config.App, flags *feedFlags, source pipeline.Source[M], handler postgres.Handler[M]) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	var sink pipeline.Sink[M]
	if flags.useConsole {
		sink = console.NewSink[M]()
	} else {
		if err := cfg.Postgres.Validate(); err != nil {
			return err
		}
		db, err := postgres.Connect(ctx, cfg.Postgres.URL, handler)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.InitializeSchema(ctx); err != nil {
			return err
		}
		sink = db
	}

	handles, err := pipeline.NewBuilder(source, sink).
		Capacity(cfg.ChannelCapacity).
		Start(ctx)
	if err != nil {
		return err
	}
	return handles.Wait()
}
