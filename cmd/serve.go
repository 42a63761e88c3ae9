package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardex-server/broker"
	"cardex-server/config"
	"cardex-server/handlers"
	"cardex-server/models"
	"cardex-server/services"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

// stores is the persistence selected by STORE_BACKEND.
type stores struct {
	cards  services.CardStore
	ledger services.LedgerStore
	db     *mongo.Database
}

func (s stores) close(ctx context.Context) {
	if s.db == nil {
		return
	}
	if err := s.db.Client().Disconnect(ctx); err != nil {
		log.Errorf("Failed to disconnect from MongoDB: %v", err)
	}
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn("Using in-memory stores; data is lost on exit")
		return stores{cards: services.NewMemoryCardStore(), ledger: services.NewMemoryLedgerStore()}, nil
	}
	db, err := services.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, err
	}
	return stores{
		cards:  services.NewMongoCardStore(db),
		ledger: services.NewMongoLedgerStore(db),
		db:     db,
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close(context.Background())

	redisClient, err := services.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	nc, err := broker.Connect(cfg.NatsURL, cfg.NatsToken)
	if err != nil {
		return fmt.Errorf("unable to connect to NATS server: %w", err)
	}
	instanceID := uuid.NewString()
	b := broker.NewBroker(nc, instanceID)
	defer b.Close()
	if nc != nil {
		log.Infof("NATS connection established successfully %s", nc.ConnectedUrl())
	}

	cardService := services.NewCardService(st.cards, redisClient, nil, b)
	ledger := services.NewSavedContactsLedger(st.ledger, cardService)
	sessions := services.NewSessionManager(cardService, ledger, b, cfg.SessionIdleTimeout)

	sub, err := b.SubscribeCardUpdates(func(e models.CardEvent) {
		log.Debugf("Card %s changed on another instance", e.CardID)
		sessions.InvalidateCatalogs()
	})
	if err != nil {
		return fmt.Errorf("unable to subscribe to card updates: %w", err)
	}
	if sub != nil {
		defer sub.Unsubscribe()
	}

	if n, err := cardService.ReindexGeo(ctx); err != nil {
		log.Warnf("Geo reindex failed: %v", err)
	} else if n > 0 {
		log.Infof("Geo index holds %d cards", n)
	}

	router := handlers.NewRouter(cardService, ledger, sessions, handlers.RouterOptions{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		RequestTimeout: cfg.RequestTimeout(),
	})
	server := cfg.HTTPServer(router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Infof("%s service (instance %s) running at %s", serviceName, instanceID, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ListenAndServe(): %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s service shutdown failed: %w", serviceName, err)
		}
		return nil
	})

	err = g.Wait()
	log.Infof("%s service gracefully stopped", serviceName)
	return err
}
