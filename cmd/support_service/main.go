package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/app"
	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/repository"
	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/router"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/config"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/database"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.SupportService, config.EnvConfig.SupportServiceLogPath)
	cfg := config.LoadConfig[config.Support](config.EnvConfig.SupportService, config.EnvConfig.SupportServiceYAMLPath)

	ctx := context.Background()

	// Postgres holds the rooms; it is the correctness boundary for
	// assignment and state transitions.
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password,
		cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgURI,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s]", pgURI)),
			zap.Error(err),
		)
	}
	defer pool.Close()

	// Mongo holds the message bodies.
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d",
		cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    mongoURI,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: time.Duration(cfg.Mongo.RetryInterval),
		},
		cfg.Mongo.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", mongoURI)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// Redis serves both the room cache and the per-room broadcast channel.
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	roomRepo := repository.NewRoomRepository(pool)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	cache := repository.NewRoomCache(redisClient, cfg.Cache.TTL, cfg.Cache.RecentLimit)
	broadcaster := repository.NewRedisPubSub(redisClient)

	responder := app.NewStaticResponder("안녕하세요! 무엇을 도와드릴까요? 상담원 연결이 필요하시면 말씀해 주세요.")
	roomUC := app.NewRoomUseCase(roomRepo, msgRepo, cache)
	handoffUC := app.NewHandoffUseCase(roomRepo, msgRepo, cache, broadcaster, responder)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.SupportServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, app.NewChatWebsocketHandler(roomUC, handoffUC, broadcaster))

	port := ":" + cfg.Port
	log.Printf("Support Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
