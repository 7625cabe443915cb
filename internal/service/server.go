package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/alert"
	"github.com/waypointdigitalstudio-lang/houseops/internal/config"
	"github.com/waypointdigitalstudio-lang/houseops/internal/consumer"
	"github.com/waypointdigitalstudio-lang/houseops/internal/database"
	"github.com/waypointdigitalstudio-lang/houseops/internal/feed"
	"github.com/waypointdigitalstudio-lang/houseops/internal/httpapi"
	"github.com/waypointdigitalstudio-lang/houseops/internal/push"
	"github.com/waypointdigitalstudio-lang/houseops/internal/redisx"
	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

// HouseOpsService 库存服务（整合各层）
// 单进程承载 HTTP API 与报警消费者两个面
type HouseOpsService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	itemsRepo  *repository.StockItemsRepository
	tokensRepo *repository.DeviceTokensRepository
	alertsRepo *repository.AlertsRepository
	sitesRepo  *repository.SitesRepository
	usersRepo  *repository.UsersRepository

	pushClient    *push.Client
	notifier      *feed.Notifier
	pipeline      *alert.Pipeline
	stockConsumer *consumer.StockConsumer

	httpServer *http.Server
}

// NewHouseOpsService 创建库存服务
func NewHouseOpsService(cfg *config.Config, logger *zap.Logger) (*HouseOpsService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redisx.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	itemsRepo := repository.NewStockItemsRepository(db, logger)
	tokensRepo := repository.NewDeviceTokensRepository(db, logger)
	alertsRepo := repository.NewAlertsRepository(db, logger)
	sitesRepo := repository.NewSitesRepository(db, logger)
	usersRepo := repository.NewUsersRepository(db, logger)

	// 4. 推送网关与 feed 通知
	pushClient := push.NewClient(cfg.Push.GatewayURL, logger)
	notifier := feed.NewNotifier(redisClient, cfg.Alert.FeedChannelPrefix)

	// 5. 报警管线与库存变更消费者
	pipeline := alert.NewPipeline(
		itemsRepo,
		tokensRepo,
		alertsRepo,
		pushClient,
		notifier,
		time.Duration(cfg.Alert.CooldownMinutes)*time.Minute,
		logger,
	)
	stockConsumer := consumer.NewStockConsumer(
		redisClient,
		pipeline,
		logger,
		cfg.Alert.Stream,
		cfg.Alert.ConsumerGroup,
		cfg.Alert.ConsumerName,
		cfg.Alert.BatchSize,
	)

	svc := &HouseOpsService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		logger:        logger,
		itemsRepo:     itemsRepo,
		tokensRepo:    tokensRepo,
		alertsRepo:    alertsRepo,
		sitesRepo:     sitesRepo,
		usersRepo:     usersRepo,
		pushClient:    pushClient,
		notifier:      notifier,
		pipeline:      pipeline,
		stockConsumer: stockConsumer,
	}

	// 6. HTTP 路由
	router := httpapi.NewRouter(logger)
	router.RegisterItemsRoutes(httpapi.NewItemsHandler(itemsRepo, redisClient, cfg.Alert.Stream, logger))
	router.RegisterTokensRoutes(httpapi.NewTokensHandler(tokensRepo, logger))
	router.RegisterAlertsRoutes(httpapi.NewAlertsHandler(alertsRepo, notifier, logger))
	router.RegisterAdminRoutes(httpapi.NewAdminHandler(sitesRepo, usersRepo, logger))
	router.RegisterExportRoutes(httpapi.NewExportHandler(itemsRepo, logger))

	svc.httpServer = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	return svc, nil
}

// Start 启动服务（阻塞直到 ctx 取消或出错）
func (s *HouseOpsService) Start(ctx context.Context) error {
	s.logger.Info("Starting houseops service",
		zap.String("http_addr", s.config.HTTP.Addr),
		zap.String("alert_stream", s.config.Alert.Stream),
	)

	errChan := make(chan error, 2)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	go func() {
		if err := s.stockConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("stock consumer error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop 停止服务
func (s *HouseOpsService) Stop() error {
	s.logger.Info("Stopping houseops service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shutdown http server", zap.Error(err))
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
