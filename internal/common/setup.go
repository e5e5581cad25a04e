package common

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"chatwallet/internal/api"
	"chatwallet/internal/chain"
	"chatwallet/internal/config"
	"chatwallet/internal/database"
	"chatwallet/internal/flow"
	"chatwallet/internal/formance"
	"chatwallet/internal/guard"
	"chatwallet/internal/httpclient"
	"chatwallet/internal/intent"
	"chatwallet/internal/listener"
	"chatwallet/internal/models"
	"chatwallet/internal/oracle"
	"chatwallet/internal/postgres"
	"chatwallet/internal/session"
	"chatwallet/internal/store"
	"chatwallet/internal/transport"
	"chatwallet/internal/vault"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Store        store.RecordStore
	Orchestrator *flow.Orchestrator
	Api          *api.Service
	Maintainer   *listener.Maintainer
	Journal      *formance.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices builds the full wallet: record store, chain SDKs,
// custody, conversation flow, webhook surface and background maintainer.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	st, err := InitializeStoreOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}

	services := &Services{Store: st}
	if err := services.wire(ctx, cfg); err != nil {
		services.Close()
		return nil, err
	}
	return services, nil
}

func (cs *Services) wire(ctx context.Context, cfg *models.Config) error {
	httpClient, err := httpclient.New(cfg.Chains.CallTimeout)
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}

	zap.L().Info("Loading token configuration", zap.String("file", cfg.Chains.TokensFile))
	extra, err := LoadTokenConfig(cfg.Chains.TokensFile)
	if err != nil {
		return err
	}
	tokens := chain.NewTokenRegistry(extra)

	chains, err := dialChains(ctx, cfg.Chains, httpClient)
	if err != nil {
		return err
	}

	v, err := vault.New(cfg.Vault)
	if err != nil {
		return err
	}

	var resolver *intent.Resolver
	if cfg.Oracle.ApiUrl != "" {
		zap.L().Info("Intent oracle enabled", zap.String("model", cfg.Oracle.Model))
		resolver = intent.NewResolver(oracle.New(cfg.Oracle, httpClient), tokens)
	} else {
		zap.L().Info("No ORACLE_API_URL set, resolving intents with rules only")
		resolver = intent.NewResolver(nil, tokens)
	}

	flowCfg := flow.Config{
		Store:        cs.Store,
		Sessions:     session.NewStore(cs.Store, cfg.Session),
		Locker:       session.NewHandleLocker(),
		Vault:        v,
		Guard:        guard.New(cs.Store, cfg.Guard),
		Resolver:     resolver,
		Chains:       chains,
		Tokens:       tokens,
		ChainTimeout: cfg.Chains.CallTimeout,
		SlippageBps:  cfg.Chains.SwapSlippageBps,
	}
	if cfg.Formance.StackURL != "" {
		journal, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return err
		}
		cs.Journal = journal
		flowCfg.Journal = journal
	}
	cs.Orchestrator = flow.New(flowCfg)

	var sender transport.Sender = transport.LogSender{}
	if client, err := transport.NewClient(cfg.Transport); err == nil {
		sender = client
	} else {
		zap.L().Warn("Transport not configured, replies will only be logged", zap.Error(err))
	}

	cs.Api = api.NewService(api.Config{
		Handler:        cs.Orchestrator,
		Store:          cs.Store,
		Sender:         sender,
		SignatureToken: cfg.Transport.AuthToken,
		WebhookURL:     cfg.Transport.WebhookURL,
	})
	cs.Maintainer = listener.NewMaintainer(listener.MaintainerConfig{
		Jobs:              cs.Orchestrator,
		SweepInterval:     cfg.Listener.SweepInterval,
		ReconcileInterval: cfg.Listener.ReconcileInterval,
		ReconcileBatch:    cfg.Listener.ReconcileBatch,
	})
	return nil
}

// InitializeStoreOnly opens the configured record store without any chain
// or custody services. Useful for read-only tools.
func InitializeStoreOnly(ctx context.Context, cfg *models.Config) (store.RecordStore, error) {
	if cfg.Database.Backend == config.BackendPostgres {
		zap.L().Info("Using Postgres record store")
		pg, err := postgres.NewService(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}

	zap.L().Info("Using SQLite record store", zap.String("path", cfg.Database.Path))
	db, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// dialChains connects every chain family that has an RPC endpoint configured.
func dialChains(ctx context.Context, cfg models.ChainsConfig, httpClient *http.Client) (*chain.Registry, error) {
	var sdks []chain.WalletSDK

	if cfg.EvmRpcUrl != "" {
		evm, err := chain.DialEVM(ctx, cfg.EvmRpcUrl, cfg.EvmChainId, chain.NewLifiClient(cfg.LifiApiUrl, httpClient))
		if err != nil {
			return nil, err
		}
		zap.L().Info("EVM wallet SDK ready", zap.Int64("chain_id", cfg.EvmChainId))
		sdks = append(sdks, evm)
	}
	if cfg.SolanaRpcUrl != "" {
		sdks = append(sdks, chain.DialSolana(cfg.SolanaRpcUrl, chain.NewJupiterClient(cfg.JupiterApiUrl, httpClient)))
		zap.L().Info("Solana wallet SDK ready")
	}

	if len(sdks) == 0 {
		return nil, fmt.Errorf("no chain configured: set EVM_RPC_URL and/or SOLANA_RPC_URL")
	}
	return chain.NewRegistry(sdks...), nil
}

func (cs *Services) Close() {
	if cs.Journal != nil {
		cs.Journal.Close()
	}
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
