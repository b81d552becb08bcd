package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort는 RTSP 서비스 기본 포트
	DefaultPort = 9554
	// ConfigFileName은 검색 디렉토리에서 찾는 설정 파일 이름
	ConfigFileName = "rtsp-test-server.conf"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
// 시작 시 한 번 생성되고 이후에는 읽기 전용입니다
type Config struct {
	Port    int           `yaml:"port"`
	Logging LoggingConfig `yaml:"logging"`
	Engine  EngineConfig  `yaml:"engine"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

type EngineConfig struct {
	Command      string `yaml:"command"`
	StartTimeout int    `yaml:"start_timeout"` // 초 단위
	IdleTimeout  int    `yaml:"idle_timeout"`  // 초 단위, 0이면 비활성 종료 없음
	Restart      bool   `yaml:"restart"`
}

// fileConfig는 설정 파일에서 읽어들이는 값입니다
// 포인터 필드로 키 존재 여부를 구분합니다 (키 없음 != 0)
type fileConfig struct {
	Port    *int `yaml:"port"`
	Logging *struct {
		Level      *string `yaml:"level"`
		Output     *string `yaml:"output"`
		FilePath   *string `yaml:"file_path"`
		MaxSize    *int    `yaml:"max_size"`
		MaxBackups *int    `yaml:"max_backups"`
		MaxAge     *int    `yaml:"max_age"`
	} `yaml:"logging"`
	Engine *struct {
		Command      *string `yaml:"command"`
		StartTimeout *int    `yaml:"start_timeout"`
		IdleTimeout  *int    `yaml:"idle_timeout"`
		Restart      *bool   `yaml:"restart"`
	} `yaml:"engine"`
}

// DefaultConfig는 컴파일 타임 기본 설정을 반환합니다
func DefaultConfig() *Config {
	return &Config{
		Port: DefaultPort,
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "console",
			FilePath:   "logs/rtsp-test-server.log",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		Engine: EngineConfig{
			Command:      `rtsp-media-engine "$RTSP_PIPELINE" "$RTSP_URL"`,
			StartTimeout: 10,
			IdleTimeout:  0,
			Restart:      true,
		},
	}
}

// ConfigDirs는 설정 파일 검색 디렉토리를 우선순위 순서로 반환합니다
// 사용자 설정이 시스템 설정보다 우선합니다
func ConfigDirs() []string {
	var dirs []string

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		dirs = append(dirs, filepath.Join(configHome, "rtsp-test-server"))
	}

	dirs = append(dirs, "/etc/rtsp-test-server")

	return dirs
}

// LoadConfig는 검색 경로에서 설정 파일을 찾아 기본 설정에 병합합니다
// 모든 실패는 로그로 남기고 기본값으로 복구하므로 항상 유효한 Config를 반환합니다
//
// 검색 규칙: 처음 발견된 설정 파일이 검색을 끝냅니다
// 파싱에 실패해도 이후 디렉토리는 시도하지 않습니다
func LoadConfig(searchDirs []string, logger *zap.Logger) *Config {
	config := DefaultConfig()

	if len(searchDirs) == 0 {
		return config
	}

	for _, dir := range searchDirs {
		configFile := filepath.Join(dir, ConfigFileName)

		info, err := os.Stat(configFile)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		logger.Info("Loading config", zap.String("file", configFile))

		data, err := os.ReadFile(configFile)
		if err != nil {
			logger.Error("Fail load config",
				zap.String("file", configFile),
				zap.Error(err),
			)
			return config
		}

		var loaded fileConfig
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			// yaml 에러 메시지에 라인 번호가 포함됩니다
			logger.Error("Fail load config",
				zap.String("file", configFile),
				zap.Error(err),
			)
			return config
		}

		mergeConfig(config, &loaded, logger)
		return config
	}

	return config
}

// mergeConfig는 파일에서 읽은 값 중 유효한 것만 작업 설정에 반영합니다
// 유효하지 않은 값은 로그로 남기고 이전 값을 유지합니다
func mergeConfig(config *Config, loaded *fileConfig, logger *zap.Logger) {
	if loaded.Port != nil {
		if *loaded.Port > 0 && *loaded.Port < 65535 {
			config.Port = *loaded.Port
		} else {
			logger.Error("Invalid port value", zap.Int("port", *loaded.Port))
		}
	}

	if loaded.Logging != nil {
		l := loaded.Logging
		if l.Level != nil {
			if validLogLevel(*l.Level) {
				config.Logging.Level = *l.Level
			} else {
				logger.Error("Invalid logging level", zap.String("level", *l.Level))
			}
		}
		if l.Output != nil {
			if *l.Output == "console" || *l.Output == "file" || *l.Output == "both" {
				config.Logging.Output = *l.Output
			} else {
				logger.Error("Invalid logging output", zap.String("output", *l.Output))
			}
		}
		if l.FilePath != nil && *l.FilePath != "" {
			config.Logging.FilePath = *l.FilePath
		}
		if l.MaxSize != nil && *l.MaxSize > 0 {
			config.Logging.MaxSize = *l.MaxSize
		}
		if l.MaxBackups != nil && *l.MaxBackups >= 0 {
			config.Logging.MaxBackups = *l.MaxBackups
		}
		if l.MaxAge != nil && *l.MaxAge >= 0 {
			config.Logging.MaxAge = *l.MaxAge
		}
	}

	if loaded.Engine != nil {
		e := loaded.Engine
		if e.Command != nil {
			if *e.Command != "" {
				config.Engine.Command = *e.Command
			} else {
				logger.Error("Invalid engine command: empty")
			}
		}
		if e.StartTimeout != nil {
			if *e.StartTimeout > 0 {
				config.Engine.StartTimeout = *e.StartTimeout
			} else {
				logger.Error("Invalid engine start_timeout",
					zap.Int("start_timeout", *e.StartTimeout))
			}
		}
		if e.IdleTimeout != nil {
			if *e.IdleTimeout >= 0 {
				config.Engine.IdleTimeout = *e.IdleTimeout
			} else {
				logger.Error("Invalid engine idle_timeout",
					zap.Int("idle_timeout", *e.IdleTimeout))
			}
		}
		if e.Restart != nil {
			config.Engine.Restart = *e.Restart
		}
	}
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// Validate는 최종 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port >= 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Engine.Command == "" {
		return fmt.Errorf("engine command cannot be empty")
	}
	if c.Engine.StartTimeout <= 0 {
		return fmt.Errorf("engine start_timeout must be positive")
	}
	return nil
}

// GetStartTimeout은 엔진 기동 대기 시간을 time.Duration으로 반환합니다
func (e *EngineConfig) GetStartTimeout() time.Duration {
	return time.Duration(e.StartTimeout) * time.Second
}

// GetIdleTimeout은 비활성 종료 시간을 time.Duration으로 반환합니다
func (e *EngineConfig) GetIdleTimeout() time.Duration {
	return time.Duration(e.IdleTimeout) * time.Second
}
