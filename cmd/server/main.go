// Package main runs the presale server:
// - Wallet session with a local keypair signer (auto-connected at start)
// - Balance tracker and pending-record reconciler in the background
// - HTTP API for purchases, history, notifications and health/metrics/status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"solana-presale/internal/api"
	"solana-presale/internal/config"
	"solana-presale/internal/ledger"
	"solana-presale/internal/notify"
	"solana-presale/internal/purchase"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
	chstore "solana-presale/internal/storage/clickhouse"
	"solana-presale/internal/storage/file"
	"solana-presale/internal/storage/memory"
	"solana-presale/internal/storage/migrations"
	pgstore "solana-presale/internal/storage/postgres"
	"solana-presale/internal/wallet"
)

// Server holds all components of the presale service.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	stores     *stores
	ws         *solana.WSClientImpl
	signer     *wallet.KeypairSigner
	session    *purchase.Session
	submitter  *purchase.Submitter
	reconciler *purchase.Reconciler
	feed       *notify.Feed
}

// stores holds the selected storage implementations.
type stores struct {
	backend  string
	history  storage.HistoryStore
	attempts storage.AttemptLog // memory unless a ClickHouse DSN is set
}

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Parse flags (env vars as defaults)
	flag.StringVar(&cfg.RPCEndpoint, "rpc-endpoint", cfg.RPCEndpoint, "Solana RPC HTTP endpoint")
	flag.StringVar(&cfg.WSEndpoint, "ws-endpoint", cfg.WSEndpoint, "Solana WebSocket endpoint (empty for polling only)")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	flag.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string for the attempt log")
	flag.StringVar(&cfg.HistoryBackend, "history-backend", cfg.HistoryBackend, "History backend: memory, file or postgres")
	flag.StringVar(&cfg.HistoryDir, "history-dir", cfg.HistoryDir, "Directory of the file history backend")
	flag.StringVar(&cfg.KeypairPath, "keypair", cfg.KeypairPath, "Keystore file with the signer keypair")
	flag.BoolVar(&cfg.KeypairGenerate, "keypair-generate", cfg.KeypairGenerate, "Generate a keypair when the keystore has none")
	flag.StringVar(&cfg.Treasury, "treasury", cfg.Treasury, "Sale treasury address")
	flag.Uint64Var(&cfg.MaxLamportsPerTx, "max-lamports", cfg.MaxLamportsPerTx, "Signer limit per transaction in lamports (0 disables)")
	flag.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Submission attempts per purchase")
	flag.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Linear backoff unit between attempts")
	flag.DurationVar(&cfg.BalanceRefreshInterval, "balance-interval", cfg.BalanceRefreshInterval, "Balance refresh interval (15s-30s)")
	flag.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "Pending record reconciliation interval")
	flag.DurationVar(&cfg.ConfirmPollInterval, "confirm-poll-interval", cfg.ConfirmPollInterval, "Signature status polling interval")
	flag.StringVar(&cfg.Commitment, "commitment", cfg.Commitment, "Commitment level: processed, confirmed or finalized")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP API address")

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server, err := newServer(ctx, cfg, st, logger)
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}
	defer server.Close()

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores selects the history backend and the optional ClickHouse attempt log.
func createStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*stores, func(), error) {
	st := &stores{backend: cfg.HistoryBackend}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.HistoryBackend {
	case config.BackendMemory:
		st.history = memory.NewHistoryStore()
	case config.BackendFile:
		fs, err := file.Open(cfg.HistoryDir, file.DefaultKey)
		if err != nil {
			return nil, nil, fmt.Errorf("open file history: %w", err)
		}
		logger.Printf("History file: %s", fs.Path())
		st.history = fs
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.history = pgstore.NewHistoryStore(pool)
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}

	// process-local audit unless ClickHouse is configured
	st.attempts = memory.NewAttemptLog()
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		st.attempts = chstore.NewAttemptLog(conn)
		logger.Println("Attempt log: clickhouse")
	}

	return st, cleanup, nil
}

// newServer wires the signer, ledger, session and purchase components.
func newServer(ctx context.Context, cfg *config.Config, st *stores, logger *log.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		stores: st,
		feed:   notify.NewFeed(notify.DefaultFeedSize),
	}
	notifier := notify.Multi{
		s.feed,
		notify.NewLogNotifier(log.New(os.Stdout, "[notify] ", log.LstdFlags)),
	}

	key, generated, err := loadKey(cfg)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Printf("Generated new keypair in %s", cfg.KeypairPath)
	}

	var gate wallet.Gate
	if cfg.MaxLamportsPerTx > 0 {
		gate = wallet.MaxLamportsGate(cfg.MaxLamportsPerTx)
	}
	s.signer, err = wallet.NewKeypairSigner(key, wallet.KeypairSignerOptions{
		Gate:   gate,
		Logger: log.New(os.Stdout, "[wallet] ", log.LstdFlags),
	})
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	ledgerOpts := ledger.RPCOptions{
		Commitment:   cfg.Commitment,
		PollInterval: cfg.ConfirmPollInterval,
		Logger:       log.New(os.Stdout, "[ledger] ", log.LstdFlags),
	}
	if cfg.WSEndpoint != "" {
		wsConfig := solana.DefaultWSConfig()
		wsConfig.Logger = log.New(os.Stdout, "[ws] ", log.LstdFlags)
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsConfig)
		if err != nil {
			// confirmation still works by polling
			logger.Printf("WebSocket unavailable, polling only: %v", err)
		} else {
			s.ws = ws
			ledgerOpts.WS = ws
		}
	}
	l := ledger.NewRPC(rpc, ledgerOpts)

	tracker := purchase.NewBalanceTracker(l, s.signer, purchase.BalanceTrackerOptions{
		Interval: cfg.BalanceRefreshInterval,
		Notifier: notifier,
		Logger:   log.New(os.Stdout, "[balance] ", log.LstdFlags),
	})
	s.session = purchase.NewSession(s.signer, tracker)

	s.submitter, err = purchase.NewSubmitter(cfg.Sale(), l, st.history, purchase.Options{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		Attempts:    st.attempts,
		Notifier:    notifier,
		Logger:      log.New(os.Stdout, "[purchase] ", log.LstdFlags),
	})
	if err != nil {
		return nil, fmt.Errorf("create submitter: %w", err)
	}

	s.reconciler = purchase.NewReconciler(l, st.history, purchase.ReconcilerOptions{
		Interval: cfg.ReconcileInterval,
		Notifier: notifier,
		Logger:   log.New(os.Stdout, "[reconcile] ", log.LstdFlags),
	})

	return s, nil
}

// loadKey reads the signer key from the keystore, generating one if allowed.
func loadKey(cfg *config.Config) (key solanago.PrivateKey, generated bool, err error) {
	ks := wallet.NewKeystore(cfg.KeypairPath, wallet.DefaultKeyName)
	if cfg.KeypairGenerate {
		k, gen, err := ks.LoadOrGenerate()
		if err != nil {
			return nil, false, fmt.Errorf("keystore %s: %w", ks.Path(), err)
		}
		return k, gen, nil
	}
	k, err := ks.Load()
	if err != nil {
		return nil, false, fmt.Errorf("keystore %s: %w (run keygen or set KEYPAIR_GENERATE=true)", ks.Path(), err)
	}
	return k, false, nil
}

// Run connects the signer and runs the background loops and the HTTP API until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting presale server...")

	go s.session.Balance.Run(ctx)

	identity, err := s.signer.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect signer: %w", err)
	}
	s.logger.Printf("Signer connected: %s", identity)
	s.logger.Printf("Treasury %s, unit price %s SOL, remaining allocation %s",
		s.cfg.Treasury, s.cfg.UnitPrice, s.cfg.RemainingAllocation)

	go s.reconciler.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serveHTTP(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// serveHTTP runs the API server and shuts it down when ctx ends.
func (s *Server) serveHTTP(ctx context.Context) error {
	handler := api.NewServer(api.Options{
		Session:   s.session,
		Submitter: s.submitter,
		History:   s.stores.history,
		Feed:      s.feed,
		Backend:   s.stores.backend,
		Logger:    log.New(os.Stdout, "[api] ", log.LstdFlags),
	}).Router()

	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("Starting HTTP server on %s", s.cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases the signer and the WebSocket connection.
func (s *Server) Close() {
	if s.ws != nil {
		s.ws.Close()
	}
	s.signer.Close()
}
