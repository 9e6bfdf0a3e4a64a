package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shelterchat/backend/internal/api/handler"
	"shelterchat/backend/internal/auth"
	"shelterchat/backend/internal/chat"
	"shelterchat/backend/internal/chathub"
	"shelterchat/backend/internal/config"
	"shelterchat/backend/internal/events"
	"shelterchat/backend/internal/localization"
	"shelterchat/backend/internal/members"
	"shelterchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// backends are the stores selected by configuration.
type backends struct {
	db    *gorm.DB
	mongo *mongo.Client
	rdb   *redis.Client

	rooms    storage.RoomStore
	messages storage.MessageStore
	seq      storage.SequenceAllocator
	members  members.Directory
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func setupBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		rooms, msgs := storage.NewMemoryRoomStore(), storage.NewMemoryMessageStore()
		b.rooms, b.messages = rooms, msgs
		b.members = members.NewMemoryDirectory(true)
		logger.Warn("using in-memory stores; nothing survives a restart")
	default:
		db, err := storage.OpenPostgres(cfg.DatabaseDSN, cfg.IsDevelopment())
		if err != nil {
			return nil, err
		}
		if err := storage.Migrate(db); err != nil {
			return nil, err
		}
		b.db = db
		b.rooms = storage.NewPostgresRoomStore(db)
		b.members = members.NewGormDirectory(db)
		b.messages = storage.NewPostgresMessageStore(db)

		if cfg.StoreBackend == config.BackendMongo {
			client, err := storage.ConnectMongo(ctx, cfg.MongoURI)
			if err != nil {
				return nil, err
			}
			b.mongo = client
			msgs, err := storage.NewMongoMessageStore(ctx, client.Database(cfg.MongoDatabase))
			if err != nil {
				return nil, err
			}
			b.messages = msgs
		}
	}
	logger.Info("stores ready", zap.String("backend", cfg.StoreBackend))

	if cfg.UsesRedis() {
		b.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := b.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	switch cfg.SeqStrategy {
	case config.SeqRedis:
		b.seq = storage.NewRedisAllocator(b.rdb, b.messages, logger)
	default:
		var locker storage.RoomLocker = storage.NewLocalLocker()
		if b.db != nil {
			locker = storage.NewAdvisoryLocker(b.db)
		}
		b.seq = storage.NewLockingAllocator(locker, b.messages)
	}
	logger.Info("sequence allocator ready", zap.String("strategy", cfg.SeqStrategy))
	return b, nil
}

func (b *backends) close(ctx context.Context) {
	if b.rdb != nil {
		b.rdb.Close()
	}
	if b.mongo != nil {
		b.mongo.Disconnect(ctx)
	}
	if b.db != nil {
		if sqlDB, err := b.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func (b *backends) registerHealthChecks(h *handler.Handler) {
	if b.db != nil {
		h.AddHealthCheck("postgres", func(ctx context.Context) error {
			sqlDB, err := b.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if b.mongo != nil {
		h.AddHealthCheck("mongo", func(ctx context.Context) error {
			return b.mongo.Ping(ctx, nil)
		})
	}
	if b.rdb != nil {
		h.AddHealthCheck("redis", func(ctx context.Context) error {
			return b.rdb.Ping(ctx).Err()
		})
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := localization.Default(cfg.DefaultLocale)
	if err != nil {
		logger.Fatal("load locales", zap.Error(err))
	}

	b, err := setupBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init backends", zap.Error(err))
	}
	defer b.close(context.Background())

	var relay chathub.Relay
	if b.rdb != nil {
		relay = chathub.NewRedisRelay(b.rdb, config.FanoutChannel, logger)
	}
	hub := chathub.NewHub(relay, logger)

	var msgEvents events.MessagePublisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kp.Close()
		msgEvents = kp
	}
	var roomEvents events.RoomPublisher = events.Nop{}
	if cfg.NatsURL != "" {
		np, err := events.ConnectNATS(cfg.NatsURL, logger)
		if err != nil {
			logger.Fatal("init nats", zap.Error(err))
		}
		defer np.Close()
		roomEvents = np
	}

	svc := chat.NewService(chat.Deps{
		Rooms:      b.rooms,
		Messages:   b.messages,
		Seq:        b.seq,
		Members:    b.members,
		Fanout:     hub,
		MsgEvents:  msgEvents,
		RoomEvents: roomEvents,
		Localizer:  loc,
		Logger:     logger,
	}, chat.Options{
		MaxGroupSize:          cfg.MaxGroupSize,
		PurgeMessagesOnDelete: cfg.PurgeMessagesOnDelete,
	})

	resolver := auth.NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer)
	gateway := chathub.NewGateway(hub, svc, loc, logger,
		chathub.RateLimit{Limit: rate.Limit(cfg.WSRateLimit), Burst: cfg.WSRateBurst},
		&chathub.Gatekeeper{Resolver: resolver, Rooms: svc},
	)

	h := handler.NewHandler(svc, gateway, resolver, loc, logger, cfg.AllowedOrigins)
	b.registerHealthChecks(h)

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	// stopping the hub closes the remaining WebSocket sessions
	<-hubDone
}
