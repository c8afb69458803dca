package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	_ "case_chat_service/cmd/chat_service/docs"
	"case_chat_service/internal/api/handlers"
	apirouter "case_chat_service/internal/api/router"
	"case_chat_service/internal/chat/app"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/internal/chat/router"
	"case_chat_service/pkg/config"
	"case_chat_service/pkg/database"
	errprocess "case_chat_service/pkg/err"
	"case_chat_service/pkg/logger"
	testtool "case_chat_service/pkg/test_tool"
	"case_chat_service/pkg/token"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatLogPath)
	cfg, err := config.LoadChatConfig(config.EnvConfig.ChatService, config.EnvConfig.ChatYAMLPath)
	if err != nil {
		logger.Log.Fatal("load chat config failed", zap.Error(err))
	}
	token.SetSecret(cfg.JWT.Secret)
	if config.IsLocal() {
		logger.Log.SetDebugMode(true)
	}
	logger.Log.Infof("websocket malformed frame threshold", cfg.Websocket.MaxMalformedFrame)
	testtool.StartPprof(":6063")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Mongo (聊天室, 訊息, 回條, 通知)
	mongoURI := database.MongoURI(cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.NewConnection(mongoURI, cfg.MongoDB.RetryCount, cfg.MongoDB.RetryInterval),
		cfg.MongoDB.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoDB.Host, cfg.MongoDB.Port)),
			zap.Error(err),
		)
	}

	roomRepo := repository.NewMongoRoomRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	readRepo := repository.NewMongoReadStatusRepository(mongo.Database)
	notifRepo := repository.NewMongoNotificationRepository(mongo.Database)
	for _, repo := range []indexer{roomRepo, msgRepo, readRepo, notifRepo} {
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Log.Fatal("ensure mongo indexes failed", zap.Error(err))
		}
	}

	// 2. Redis (跨行程廣播, 在線名單, 事件去重, profile cache)
	masterName, sentinels := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, masterName, sentinels, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}

	// 3. PostgreSQL (業務資料唯讀, bridge failure table)
	dsn := database.PostgresDSN(cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgConn := database.NewConnection(dsn, cfg.PostgreSQL.RetryCount, cfg.PostgreSQL.RetryInterval)
	pgPool, err := database.NewDatabaseConnection(ctx, pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres after retries", zap.Error(err))
	}
	gormDB, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to open gorm connection", zap.Error(err))
	}
	failureRepo := repository.NewGormFailureRepository(gormDB)
	if err := failureRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("migrate case_event_failures failed", zap.Error(err))
	}

	dir := repository.NewCachedDirectory(
		repository.NewPGDirectoryRepository(pgPool),
		database.NewRedisRepository[string](redisClient, "chat:profile:"),
		cfg.Redis.CacheTTL,
	)

	// 4. RabbitMQ + SendGrid (通知 email 副本), optional
	var (
		rabbitConn *amqp.Connection
		rabbit     database.RabbitRepo
		mailQueue  repository.MailQueue
		mailWorker *app.MailWorker
	)
	if cfg.RabbitMQ.Host != "" {
		rabbitConn, rabbit, err = connectRabbit(cfg.RabbitMQ)
		if err != nil {
			logger.Log.Fatal("connect rabbitmq failed", zap.Error(err))
		}
		if mailQueue, err = repository.NewRabbitMailQueue(rabbit, cfg.SendGrid.Queue); err != nil {
			logger.Log.Fatal("declare mail queue failed", zap.Error(err))
		}
		if cfg.SendGrid.APIKey != "" {
			sender := repository.NewSendGridSender(cfg.SendGrid.APIKey, cfg.SendGrid.FromName, cfg.SendGrid.FromEmail)
			mailWorker = app.NewMailWorker(rabbit, cfg.SendGrid.Queue, dir, sender)
		} else {
			logger.Log.Warn("sendgrid api key is empty, email jobs are queued but not sent")
		}
	}

	// 5. UseCases
	hub := app.NewHub(repository.NewRedisPubSub(redisClient))
	presence := repository.NewRedisPresenceRepository(redisClient)
	guard := app.NewAccessGuard(dir)
	notifUC := app.NewNotificationUseCase(notifRepo, hub, mailQueue)
	roomUC := app.NewRoomUseCase(roomRepo, dir, guard, notifUC)
	messageUC := app.NewMessageUseCase(roomRepo, msgRepo, readRepo, guard, notifUC, hub)
	statsUC := app.NewStatsUseCase(roomRepo, msgRepo, notifRepo, guard)

	if cfg.MinIO.Endpoint != "" {
		mc, err := database.NewMinIOConnection(ctx, database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    max(cfg.MinIO.RetryCount, 1),
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval) * time.Second,
		})
		if err != nil {
			logger.Log.Fatal("connect minio failed", zap.Error(err))
		}
		messageUC.WithAttachmentSigner(mc, cfg.MinIO.PresignExpiry)
	}

	// 6. Event Bridge + kafka consumer
	deduper := repository.NewRedisEventDeduper(database.NewRedisRepository[int64](redisClient, "chat:event:"), cfg.Bridge.DedupeTTL)
	bridge := app.NewEventBridge(roomUC, notifUC, failureRepo, deduper, cfg.Bridge.QueueSize, cfg.Bridge.MaxAttempts)
	retryCron, err := bridge.StartRetryCron(ctx, cfg.Bridge.RetrySpec)
	if err != nil {
		logger.Log.Fatal("start bridge retry cron failed", zap.Error(err))
	}

	var (
		kafkaReader *kafka.Reader
		consumer    *app.KafkaCaseEventConsumer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaReader, err = database.NewKafkaReaderWithRetry(ctx, database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			GroupID:       cfg.Kafka.GroupID,
			RetryCount:    max(cfg.Kafka.RetryCount, 1),
			RetryInterval: time.Duration(max(cfg.Kafka.RetryInterval, 1)) * time.Second,
		})
		if err != nil {
			logger.Log.Fatal("connect kafka failed", zap.Error(err))
		}
		consumer = app.NewKafkaCaseEventConsumer(kafkaReader, bridge)
	}

	// 7. gRPC health
	var health *database.HealthServer
	if cfg.GRPCHealthPort != "" {
		if health, err = database.NewHealthServer(cfg.GRPCHealthPort); err != nil {
			logger.Log.Fatal("start grpc health failed", zap.Error(err))
		}
		go health.Serve()
	}

	// 8. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log file", zap.Error(err))
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	wsHandler := app.NewChatWebsocketHandler(app.NewJWTIdentityResolver(), roomUC, messageUC, notifUC, guard, hub, presence, cfg.Websocket)
	router.RegisterRoutes(ctx, r, wsHandler)
	apirouter.RegisterRoutes(r, handlers.NewChatHandler(roomUC, messageUC, notifUC, statsUC, presence))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return bridge.Run(gctx) })
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	if mailWorker != nil {
		g.Go(func() error { return mailWorker.Run(gctx) })
	}
	g.Go(func() error {
		port := ":" + cfg.Port
		logger.Log.Info("Chat Service listening", zap.String("port", port))
		return r.Listen(port)
	})
	go watchWorkers(ctx, gctx, requestShutdown)
	go func() {
		if err := g.Wait(); err != nil {
			logger.Log.Errorf("chat service worker failed", err)
		}
	}()

	if health != nil {
		health.SetServing(true)
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"fiber": func(ctx context.Context) error {
			if health != nil {
				health.SetServing(false)
			}
			return r.ShutdownWithContext(ctx)
		},
		"workers": func(ctx context.Context) error {
			cancel()
			select {
			case <-retryCron.Stop().Done():
			case <-ctx.Done():
			}
			if kafkaReader != nil {
				return kafkaReader.Close()
			}
			return nil
		},
		"grpc": func(ctx context.Context) error {
			if health != nil {
				health.Stop()
			}
			return nil
		},
		"rabbitmq": func(ctx context.Context) error {
			if rabbit == nil {
				return nil
			}
			_ = rabbit.Close()
			return rabbitConn.Close()
		},
		"storage": func(ctx context.Context) error {
			pgPool.Close()
			if sqlDB, err := gormDB.DB(); err == nil {
				_ = sqlDB.Close()
			}
			_ = redisClient.Close()
			return mongo.Close(ctx)
		},
	})

	exitCode := <-wait
	logger.Log.Info("chat service stopped", zap.Int("exitCode", exitCode))
	logger.Log.Sync()
	os.Exit(exitCode)
}

// watchWorkers 任一 worker 失敗時觸發 shutdown, relay 或 consumer 停止後不能只剩 HTTP 在跑.
// Returns true when shutdown was requested.
func watchWorkers(ctx, gctx context.Context, shutdown func() error) bool {
	<-gctx.Done()
	if ctx.Err() != nil {
		// 已在關機流程中
		return false
	}
	logger.Log.Errorf("chat service worker stopped, shutting down", context.Cause(gctx))
	if err := shutdown(); err != nil {
		logger.Log.Fatal("signal shutdown failed", zap.Error(err))
	}
	return true
}

// requestShutdown 送 SIGTERM 給自己, GracefulShutdown 收到後執行所有 operation
func requestShutdown() error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}

func connectRabbit(c config.DatabaseConfig) (*amqp.Connection, database.RabbitRepo, error) {
	conn, err := database.ConnectRabbitMQWithRetry(
		database.NewConnection(database.AMQPURI(c.User, c.Password, c.Host, c.Port), c.RetryCount, c.RetryInterval))
	if err != nil {
		return nil, nil, errprocess.Wrap("connect rabbitmq", err)
	}
	ch, err := database.GetRabbitMQChannelWithRetry(conn, max(c.RetryCount, 1), time.Duration(max(c.RetryInterval, 1))*time.Second)
	if err != nil {
		_ = conn.Close()
		return nil, nil, errprocess.Wrap("open rabbitmq channel", err)
	}
	return conn, database.NewRabbitRepository(ch), nil
}
