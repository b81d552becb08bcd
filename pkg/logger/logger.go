package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log는 전역 로거 인스턴스
	Log *zap.Logger
	// fileWriter는 현재 파일 writer
	fileWriter *lumberjack.Logger
)

// LogConfig는 로거 설정
type LogConfig struct {
	Level      string
	Output     string
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

// InitLogger는 zap 로거를 초기화합니다
// 이미 초기화된 경우 새 설정으로 교체합니다 (config 로드 후 재호출)
func InitLogger(cfg LogConfig) error {
	// 로그 레벨 파싱
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 인코더 설정
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	// 출력 설정
	var core zapcore.Core

	switch cfg.Output {
	case "file":
		fileWriter = getFileWriter(cfg)
		core = zapcore.NewCore(
			fileEncoder,
			zapcore.AddSync(fileWriter),
			level,
		)
	case "both":
		fileWriter = getFileWriter(cfg)
		core = zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level),
		)
	default: // "console"
		core = zapcore.NewCore(
			consoleEncoder,
			zapcore.AddSync(os.Stdout),
			level,
		)
	}

	// 로거 생성
	Log = zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	return nil
}

// getFileWriter는 로테이션되는 로그 파일 writer를 생성합니다
func getFileWriter(cfg LogConfig) *lumberjack.Logger {
	logDir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups, // 보관할 최대 파일 개수
		MaxAge:     cfg.MaxAge,     // 일 단위
		LocalTime:  true,
		Compress:   true,
	}
}

// Close는 로거를 종료하고 리소스를 정리합니다
func Close() {
	if Log != nil {
		_ = Log.Sync()
	}
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
}

// Sync는 로거 버퍼를 플러시합니다
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

// Info는 info 레벨 로그를 출력합니다
func Info(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Info(msg, fields...)
	}
}

// Debug는 debug 레벨 로그를 출력합니다
func Debug(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Debug(msg, fields...)
	}
}

// Warn는 warn 레벨 로그를 출력합니다
func Warn(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Warn(msg, fields...)
	}
}

// Error는 error 레벨 로그를 출력합니다
func Error(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Error(msg, fields...)
	}
}

// Fatal는 fatal 레벨 로그를 출력하고 프로그램을 종료합니다
func Fatal(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Fatal(msg, fields...)
	}
}
