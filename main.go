package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/handler"
	"github.com/alimoorreza/segbuilder-v1/service"
	"github.com/alimoorreza/segbuilder-v1/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config (%v), using defaults\n", err)
		cfg = config.Default()
	}

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting segbuilder server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 初始化存储
	blobs, err := service.NewFileBlobStore(cfg.Storage.RootDir)
	if err != nil {
		utils.Logger.Fatal("failed to open storage", zap.Error(err))
	}

	// 初始化Redis：项目记录、草稿和图片锁都依赖它
	redisService := service.NewRedisService(&cfg.Redis, &cfg.Lock)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisService.Ping(ctx); err != nil {
		cancel()
		utils.Logger.Fatal("redis connection failed", zap.Error(err))
	}
	cancel()
	utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
	defer redisService.Close()

	// 初始化服务
	projectService := service.NewProjectService(redisService)
	fileService := service.NewFileService(&cfg.Upload, blobs, redisService, redisService)
	annotationService := service.NewAnnotationService(&cfg.Render, blobs, redisService, redisService, projectService)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	r := handler.NewRouter(handler.Handlers{
		Projects:    handler.NewProjectHandler(projectService),
		Uploads:     handler.NewUploadHandler(cfg, fileService),
		Annotations: handler.NewAnnotationHandler(annotationService),
	}, handler.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Logger.Info("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Error("server forced to shutdown", zap.Error(err))
	}
}
