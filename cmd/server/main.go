package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"relaychat/internal/auth"
	"relaychat/internal/config"
	"relaychat/internal/outbox"
	"relaychat/internal/registry"
	"relaychat/internal/repository/user"
	redisSvc "relaychat/internal/service/redis"
	"relaychat/internal/service/server"
	"relaychat/internal/utils/log"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}
	if cfg.Debug {
		log.SetDebug()
	}

	mongoDBClient, err := initMongo(cfg.MongoURI)
	if err != nil {
		log.Fatal("connect to mongo failed", zap.Error(err))
	}

	db := mongoDBClient.Database(cfg.MongoDB)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	redisService := redisSvc.NewRedis(rdb)

	userRepo := user.NewUserRepo(db)
	if err := userRepo.EnsureIndexes(context.Background()); err != nil {
		log.Fatal("ensure indexes failed", zap.Error(err))
	}

	authService := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	coordinator := server.NewCoordinator(registry.New(), outbox.NewRedis(redisService))

	s := server.NewHttpServer(cfg.ListenAddr, userRepo, redisService, authService, coordinator)
	log.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := s.Run(); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func initMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
