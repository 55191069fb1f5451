package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/pitopup/pitopup/internal/aggregator"
	"github.com/pitopup/pitopup/internal/catalog"
	"github.com/pitopup/pitopup/internal/config"
	"github.com/pitopup/pitopup/internal/directory"
	"github.com/pitopup/pitopup/internal/exchange"
	"github.com/pitopup/pitopup/internal/http_api"
	"github.com/pitopup/pitopup/internal/notificator"
	"github.com/pitopup/pitopup/internal/pitopup"
	"github.com/pitopup/pitopup/internal/repository"
	"github.com/pitopup/pitopup/internal/wallet"
	"github.com/pitopup/pitopup/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "pitopup",
		Usage: "PiTopUp sells mobile airtime and data plans for Pi wallet payments",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.StringFlag{Name: "ledger", Aliases: []string{"l"}, Usage: "Ledger driver: memory, bolt or postgres"},
			&cli.StringFlag{Name: "bolt-path", Usage: "Bolt ledger file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "catalog", Aliases: []string{"c"}, Usage: "Plan catalog file (yaml, json or toml)"},
			&cli.StringFlag{Name: "topup-country", Usage: "ISO country code used for top-ups"},
			&cli.StringFlag{Name: "pi-usd-rate", Usage: "USD value of one Pi"},
			&cli.BoolFlag{Name: "seed-demo-data", Usage: "Seed demo history for new accounts"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func applyFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("ledger") {
		cfg.LedgerDriver = c.String("ledger")
	}
	if c.IsSet("bolt-path") {
		cfg.BoltPath = c.String("bolt-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("catalog") {
		cfg.CatalogFile = c.String("catalog")
	}
	if c.IsSet("topup-country") {
		cfg.TopupCountry = c.String("topup-country")
	}
	if c.IsSet("pi-usd-rate") {
		rate, err := decimal.NewFromString(c.String("pi-usd-rate"))
		if err != nil {
			return fmt.Errorf("invalid pi-usd-rate: %v", err)
		}
		cfg.PiUSDRate = rate
	}
	if c.IsSet("seed-demo-data") {
		cfg.SeedDemoData = c.Bool("seed-demo-data")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	return cfg.Validate()
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if err := applyFlags(c, cfg); err != nil {
		return fmt.Errorf("invalid flags: %v", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize ledger
	repo, err := repository.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %v", err)
	}
	defer repo.Close()

	plans := catalog.Default()
	if cfg.CatalogFile != "" {
		plans, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %v", err)
		}
	}

	rates, err := exchange.NewFixed(cfg.PiUSDRate)
	if err != nil {
		return fmt.Errorf("failed to initialize exchange rate: %v", err)
	}

	// Initialize wallet bridge and top-up aggregator
	bridge := wallet.NewBridge(wallet.NewPlatformClient(cfg.PiAPIURL, cfg.PiAPIKey, log), log)
	reloadly := aggregator.NewClient(aggregator.Config{
		AuthURL:           cfg.ReloadlyAuthURL,
		BaseURL:           cfg.ReloadlyBaseURL,
		Audience:          cfg.ReloadlyAudienceOrDefault(),
		ClientID:          cfg.ReloadlyClientID,
		ClientSecret:      cfg.ReloadlyClientSecret,
		Timeout:           cfg.ReloadlyTimeout,
		RequestsPerSecond: cfg.ReloadlyRPS,
	}, log)

	operators := directory.NewService(reloadly, cfg.DirectoryCountries, directory.DefaultRefreshInterval, log)
	operators.StartPeriodicUpdate()
	defer operators.Stop()

	// Initialize notificator
	notifier, telegram, err := notificator.FromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize notificator: %v", err)
	}
	if telegram != nil {
		telegram.Start(ctx)
	}

	// Create PiTopUp instance
	app := pitopup.NewPiTopUp(repo, plans, bridge, reloadly, operators, rates, notifier, log, cfg)
	defer app.Close()

	apiServer := http_api.NewHTTPServer(app, cfg, log)
	go apiServer.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received")
	if err := apiServer.Shutdown(); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}

	return nil
}
