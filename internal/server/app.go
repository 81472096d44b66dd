// Package server initializes and runs the wallet server. It opens the
// database, wires the ledger, custody and anchor components into the
// services, and serves them over gRPC next to a Prometheus endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/stellarkeeper/internal/assets"
	"github.com/dmitrijs2005/stellarkeeper/internal/cache"
	"github.com/dmitrijs2005/stellarkeeper/internal/custody"
	"github.com/dmitrijs2005/stellarkeeper/internal/ledger"
	"github.com/dmitrijs2005/stellarkeeper/internal/logging"
	"github.com/dmitrijs2005/stellarkeeper/internal/metrics"
	"github.com/dmitrijs2005/stellarkeeper/internal/notify"
	"github.com/dmitrijs2005/stellarkeeper/internal/pathrouter"
	"github.com/dmitrijs2005/stellarkeeper/internal/sep10"
	"github.com/dmitrijs2005/stellarkeeper/internal/sep24"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/config"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/stellarkeeper/internal/server/services"
	"github.com/dmitrijs2005/stellarkeeper/internal/txengine"
	"github.com/go-redis/redis/v8"

	gs "github.com/dmitrijs2005/stellarkeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	notifier *notify.Notifier
	accounts *services.AccountService
	wallet   *services.WalletService
	anchor   *services.AnchorService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogFormat, os.Stdout)
	if err != nil {
		return nil, err
	}

	m := repomanager.NewPostgresRepositoryManager()
	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	var (
		store     cache.Store
		publisher notify.Publisher
	)
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		store = cache.NewRedisStore(app.redis, "stellarkeeper:")
		publisher = notify.NewRedisPublisher(app.redis, c.NotificationChannel)
	} else {
		store = cache.NewMemoryStore()
		publisher = notify.NewLogPublisher(logger)
	}
	app.notifier = notify.NewNotifier(publisher, 0, logger)

	port, err := ledger.NewClient(ledger.Config{HorizonURL: c.HorizonURL, RPCURL: c.RPCURL, Timeout: c.HTTPTimeout})
	if err != nil {
		app.Close()
		return nil, err
	}

	registry, err := assets.Default(c.Network)
	if err != nil {
		app.Close()
		return nil, err
	}

	engine := txengine.New(port, txengine.Config{
		NetworkPassphrase:   c.NetworkPassphrase(),
		BaseFee:             c.BaseFee,
		TxTimeout:           c.TxTimeout,
		PollInterval:        c.PollInterval,
		PollTimeout:         c.PollTimeout,
		SerializePerAccount: c.SerializePerAccount,
	}, logger)
	router := pathrouter.New(port, logger)
	vault := custody.NewVault(logger, metrics.RecordDecrypt)

	app.accounts, err = services.NewAccountService(db, m, vault, engine, port, services.NewS3Presigner(c), c, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.wallet = services.NewWalletService(db, m, vault, engine, router, registry, port, app.notifier, c, logger)

	authenticator, err := sep10.New(sep10.Config{
		Endpoint:          c.WebAuthEndpoint,
		HomeDomain:        c.HomeDomain,
		WebAuthDomain:     c.WebAuthDomain,
		SigningKey:        c.AnchorSigningKey,
		NetworkPassphrase: c.NetworkPassphrase(),
		Timeout:           c.HTTPTimeout,
	}, vault, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	tokens, err := sep10.NewTokenSource(c.TokenStrategy, authenticator, store, c.TokenTTL, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	transfers, err := sep24.New(c.TransferServerURL, c.HTTPTimeout, tokens, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.anchor = services.NewAnchorService(db, m, transfers)

	return app, nil
}

// Close waits for pending notifications and releases connections.
func (app *App) Close() {
	if app.notifier != nil {
		app.notifier.Wait()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	var limiter *gs.RateLimiter
	if app.config.RateLimit > 0 {
		limiter = gs.NewRateLimiter(app.config.RateLimit, app.config.RateBurst)
	}

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts, app.wallet, app.anchor,
		app.config.SecretKey, limiter)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.MetricsAddr == "" {
		return
	}
	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := metrics.Serve(ctx, app.config.MetricsAddr); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "network", app.config.Network)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(ctx, "Stopped")
}
