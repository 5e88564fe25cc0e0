// Command server wires every component spec.md describes into one
// process: the HTTP-adjacent saga entrypoint, the outbox relay, the
// ranking pipeline, the payment recovery loop, and a health endpoint.
// Controllers/DTO mapping/auth are explicitly out of scope (spec §1); this
// only wires the core and exposes it behind a couple of ops routes.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/config"
	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/eventbus"
	"github.com/loopers/commerce-core/internal/gateway"
	"github.com/loopers/commerce-core/internal/logging"
	"github.com/loopers/commerce-core/internal/outboxbridge"
	"github.com/loopers/commerce-core/internal/ranking"
	"github.com/loopers/commerce-core/internal/ranking/carryover"
	"github.com/loopers/commerce-core/internal/ranking/kvcache"
	"github.com/loopers/commerce-core/internal/ranking/query"
	"github.com/loopers/commerce-core/internal/ranking/scorer"
	"github.com/loopers/commerce-core/internal/ranking/snapshot"
	"github.com/loopers/commerce-core/internal/ranking/zsetstore"
	"github.com/loopers/commerce-core/internal/recovery"
	"github.com/loopers/commerce-core/internal/relay"
	"github.com/loopers/commerce-core/internal/saga"
	"github.com/loopers/commerce-core/internal/store"
	"github.com/loopers/commerce-core/internal/store/postgres"
	"github.com/loopers/commerce-core/internal/streambus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.Log)
	log.Info().Msg("starting commerce-core")

	db := connectDB(cfg.DB, log)
	defer db.Close()

	bus := streambus.New(cfg.Broker.URL, logging.Component(log, "streambus"))
	connectBroker(bus, log)
	defer bus.Close()

	zset, err := zsetstore.NewFromURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis url")
	}
	defer zset.Close()
	cache := kvcache.New(redisClientFromURL(cfg.Redis.URL, log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	users := postgres.NewUserRepository()
	products := postgres.NewProductRepository(db)
	brands := postgres.NewBrandRepository()
	coupons := postgres.NewCouponRepository()
	orders := postgres.NewOrderRepository(db)
	payments := postgres.NewPaymentRepository()
	outbox := postgres.NewOutboxRepository(db)
	idempotency := postgres.NewIdempotencyRepository(db)

	// Intra-process bus + the single outbox bridging subscriber (spec §9).
	ebus := eventbus.New(logging.Component(log, "eventbus"), runtime.NumCPU()*2)
	outboxbridge.Register(ebus, outbox)

	gw := gateway.NewClient(cfg.Payment)
	orchestrator := saga.New(store.NewSQLDB(db), users, products, coupons, orders, payments, outbox, ebus, gw, logging.Component(log, "saga"))

	// Outbox relay.
	r := relay.New(outbox, bus, cfg.Relay.BatchSize, cfg.Relay.PollInterval, logging.Component(log, "relay"))
	go r.Start(ctx)

	// Ranking pipeline.
	sc := scorer.New(zset, idempotency, cfg.Ranking.TTL, 100*time.Millisecond, 256, logging.Component(log, "ranking-scorer"))
	go sc.Start(ctx)
	subscribeRanking(ctx, bus, sc, log)

	co := carryover.New(zset, cfg.Ranking.CarryOverWeight, cfg.Ranking.TTL, logging.Component(log, "ranking-carryover"))
	go co.Start(ctx)

	snapStore := snapshot.NewStore(db)
	snapWriter := snapshot.NewWriter(zset, products, db, snapStore, cfg.Ranking.SnapshotTopK, cfg.Ranking.SnapshotEvery, logging.Component(log, "ranking-snapshot"))
	go snapWriter.Start(ctx)

	rankingQuery := query.New(zset, snapStore, products, brands, cache, db, logging.Component(log, "ranking-query"))

	// Payment recovery loop.
	rec := recovery.New(orders, users, db, gw, orchestrator, cfg.Recovery.Interval, logging.Component(log, "recovery"))
	go rec.Start(ctx)

	// Periodic likeCount reconciliation (spec §9: "pick one writer"; the
	// batch job is that writer, never the like-event handlers).
	go runLikeCountSync(ctx, products, logging.Component(log, "likecount-sync"))

	srv := newHTTPServer(cfg.Server.Port, orchestrator, rankingQuery, zset, db)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(log, cfg.Server.ShutdownTimeout, srv, cancel)
}

func connectDB(cfg config.DBConfig, log zerolog.Logger) *sql.DB {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	var pingErr error
	for attempt := 0; attempt < 10; attempt++ {
		if pingErr = db.Ping(); pingErr == nil {
			log.Info().Msg("connected to postgres")
			return db
		}
		log.Warn().Err(pingErr).Int("attempt", attempt+1).Msg("postgres ping failed, retrying")
		time.Sleep(2 * time.Second)
	}
	log.Fatal().Err(pingErr).Msg("failed to connect to postgres")
	return nil
}

func connectBroker(bus *streambus.Bus, log zerolog.Logger) {
	var err error
	for attempt := 0; attempt < 10; attempt++ {
		if err = bus.Connect(); err == nil {
			log.Info().Msg("connected to broker")
			return
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("broker connect failed, retrying")
		time.Sleep(2 * time.Second)
	}
	log.Fatal().Err(err).Msg("failed to connect to broker")
}

func redisClientFromURL(url string, log zerolog.Logger) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis url")
	}
	return redis.NewClient(opt)
}

func subscribeRanking(ctx context.Context, bus *streambus.Bus, sc *scorer.Scorer, log zerolog.Logger) {
	if err := bus.Subscribe(ctx, domain.TopicOrderEvents, "ranking-scorer", sc.HandleOrderEvents); err != nil {
		log.Fatal().Err(err).Str("topic", domain.TopicOrderEvents).Msg("failed to subscribe")
	}
	if err := bus.Subscribe(ctx, domain.TopicLikeEvents, "ranking-scorer", sc.HandleLikeEvents); err != nil {
		log.Fatal().Err(err).Str("topic", domain.TopicLikeEvents).Msg("failed to subscribe")
	}
	if err := bus.Subscribe(ctx, domain.TopicProductEvents, "ranking-scorer", sc.HandleProductEvents); err != nil {
		log.Fatal().Err(err).Str("topic", domain.TopicProductEvents).Msg("failed to subscribe")
	}
}

func runLikeCountSync(ctx context.Context, products *postgres.ProductRepository, log zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := products.SyncLikeCounts(ctx, 1000); err != nil {
				log.Error().Err(err).Msg("like count sync failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// newHTTPServer exposes only ops endpoints (health, and thin JSON
// read/write paths standing in for the HTTP controller layer spec §1
// declares out of scope); request validation/DTO mapping is deliberately
// minimal here.
func newHTTPServer(port string, orchestrator *saga.Orchestrator, rq *query.Service, zset *zsetstore.Store, db store.Tx) *http.Server {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := zset.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"up"}`))
	})

	r.Get("/rankings", func(w http.ResponseWriter, req *http.Request) {
		date := ranking.Today()
		page, size := pageParams(req)
		result, err := rq.GetRankings(req.Context(), date, page, size)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})

	r.Post("/orders", func(w http.ResponseWriter, req *http.Request) {
		var body saga.CreateOrderRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		info, err := orchestrator.CreateOrder(req.Context(), body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	})

	return &http.Server{Addr: ":" + port, Handler: r}
}

func pageParams(req *http.Request) (int, int) {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("size"))
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	return page, size
}

func waitForShutdown(log zerolog.Logger, timeout time.Duration, srv *http.Server, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	cancel()
}
