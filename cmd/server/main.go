package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yourusername/rtsp-test-server/internal/core"
	"github.com/yourusername/rtsp-test-server/internal/engine"
	"github.com/yourusername/rtsp-test-server/internal/pipeline"
	"github.com/yourusername/rtsp-test-server/internal/rtsp"
	"github.com/yourusername/rtsp-test-server/internal/signals"
	"github.com/yourusername/rtsp-test-server/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// 부트스트랩 로거 (config 로드 전)
	if err := logger.InitLogger(logger.LogConfig{
		Level:  "info",
		Output: "console",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	// 시그널 거버너는 서버 객체 생성 전에 설치합니다
	// 초기화 중의 크래시 시그널도 잡기 위함입니다
	governor := signals.NewGovernor(logger.Log)
	governor.Install()

	logger.Info("=== RTSP Test Server starting ===")

	// 설정 로드 (실패해도 기본값으로 복구, 절대 종료하지 않음)
	cfg := core.LoadConfig(core.ConfigDirs(), logger.Log)

	// 로드된 설정으로 로거 재초기화
	if err := logger.InitLogger(logger.LogConfig{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reinitialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.Logging.Level),
	)

	// 엔진 환경 준비 (하드웨어 가속 탐색 비활성화)
	if err := engine.Init(logger.Log); err != nil {
		logger.Fatal("Failed to initialize engine environment", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 코어 컴포넌트 조립
	streamManager := core.NewStreamManager(logger.Log, 0)

	eng := engine.New(engine.Config{
		Command:     cfg.Engine.Command,
		IdleTimeout: cfg.Engine.GetIdleTimeout(),
		Restart:     cfg.Engine.Restart,
	}, logger.Log)

	server, err := rtsp.NewServer(rtsp.ServerConfig{
		Port:          cfg.Port,
		StreamManager: streamManager,
		Engine:        eng,
		EngineConfig:  cfg.Engine,
		Logger:        logger.Log,
	})
	if err != nil {
		logger.Fatal("Failed to create RTSP server", zap.Error(err))
	}

	// 마운트 포인트 등록 (하나라도 실패하면 기동 중단)
	catalog := pipeline.NewCatalog()
	if err := rtsp.RegisterAll(server.PathManager(), pipeline.DefaultMounts(), catalog); err != nil {
		logger.Fatal("Failed to register mount points", zap.Error(err))
	}

	// 메인 루프 핸들을 시그널 거버너에 공개
	loop := core.NewLoop()
	governor.SetLoop(loop)

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start RTSP server", zap.Error(err))
	}

	go eng.StartInactivityMonitor(ctx)

	// 접속 URL 요약
	for _, path := range server.PathManager().MountPaths() {
		logger.Info("Stream ready",
			zap.String("url", fmt.Sprintf("rtsp://localhost:%d%s", cfg.Port, path)),
		)
	}
	logger.Info("Server started successfully", zap.Int("port", cfg.Port))

	// 종료 시그널까지 대기
	loop.Run()

	logger.Info("Shutting down...")

	cancel()
	server.Stop()
	eng.StopAll()

	// 종료 전 스트림 통계 출력
	for id, stream := range streamManager.ListStreams() {
		stats := stream.Stats()
		logger.Info("Stream statistics",
			zap.String("stream_id", id),
			zap.Uint64("packets_received", stats.PacketsReceived),
			zap.Uint64("packets_sent", stats.PacketsSent),
			zap.Uint64("bytes_received", stats.BytesReceived),
			zap.Uint64("dropped_packets", stats.DroppedPackets),
		)
	}
	streamManager.Close()

	logger.Info("=== RTSP Test Server exiting normally ===")
}
