package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/code-100-precent/wallace/pkg/care"
	"github.com/code-100-precent/wallace/pkg/config"
	"github.com/code-100-precent/wallace/pkg/logger"
	"github.com/code-100-precent/wallace/pkg/pipeline"
	"github.com/code-100-precent/wallace/pkg/sensor"
	"github.com/code-100-precent/wallace/pkg/session"
	"github.com/code-100-precent/wallace/pkg/smarthome"
	"github.com/code-100-precent/wallace/pkg/wakeword"
	"github.com/code-100-precent/wallace/pkg/weather"
	"github.com/code-100-precent/wallace/pkg/ws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.GlobalConfig
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	if err := logger.Init(&cfg.Log, cfg.Server.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	lg := logger.Lg

	// 协作方
	asr := pipeline.NewHTTPASR(cfg.ASR, lg)
	llm := pipeline.NewLLMClient(cfg.LLM, lg)
	tts := pipeline.NewTTSManager(cfg.TTS, lg)
	weatherClient := weather.NewClient(cfg.Weather, lg)
	verifier := wakeword.NewVerifier(cfg.Wakeword.BaseURL, cfg.Wakeword.Threshold, lg)

	smartHome := smarthome.NewManager(cfg.MQTT, lg)
	smartHome.Connect()
	defer smartHome.Disconnect()

	if !llm.HealthCheck(context.Background()) {
		lg.Warn("llm backend unavailable at startup", zap.String("baseURL", cfg.LLM.BaseURL))
	}

	// 核心
	registry := session.NewRegistry()
	sensorEngine := sensor.NewEngine(cfg.Sensor, lg)
	orch := pipeline.NewOrchestrator(asr, llm, tts, sensorEngine, cfg.LLM.MaxHistoryTurns, lg)

	pusher := care.NewPusher(registry, llm, tts,
		time.Duration(cfg.Care.PushTimeout)*time.Second, lg)
	scheduler := care.NewScheduler(cfg.Care, weatherClient, pusher, lg)
	if err := scheduler.Start(); err != nil {
		lg.Fatal("failed to start care scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	memoryDir := filepath.Join(cfg.Server.DataDir, "memory")
	handler := ws.NewHandler(registry, orch, sensorEngine, verifier, smartHome,
		cfg.Server, cfg.TTS.DefaultBackend, memoryDir, lg)

	// HTTP 路由
	if cfg.Server.Mode != "development" && cfg.Server.Mode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"llm":    llm.HealthCheck(c.Request.Context()),
			"mqtt":   smartHome.IsConnected(),
		})
	})
	router.GET("/ws/:user_id", handler.HandleWS)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		lg.Info("wallace server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown failed", zap.Error(err))
	}

	for _, sess := range registry.All() {
		orch.CancelPipeline(sess)
	}
}
