package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeConfigFile은 테스트용 설정 파일을 생성합니다
func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
	assert.NotEmpty(t, cfg.Engine.Command)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_NoSearchDirs(t *testing.T) {
	// 검색 경로가 비어있으면 기본 설정 그대로
	cfg := LoadConfig(nil, zap.NewNop())

	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoadConfig_NoConfigFile(t *testing.T) {
	// 설정 파일이 없는 디렉토리만 주어지면 기본 설정 그대로
	cfg := LoadConfig([]string{t.TempDir(), t.TempDir()}, zap.NewNop())

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_PortOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "port: 8080\n")

	cfg := LoadConfig([]string{dir}, zap.NewNop())

	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadConfig_InvalidPortKeepsDefault(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"port zero", "port: 0\n"},
		{"port negative", "port: -1\n"},
		{"port too large", "port: 70000\n"},
		{"port upper bound", "port: 65535\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfigFile(t, dir, tt.content)

			cfg := LoadConfig([]string{dir}, zap.NewNop())

			// 유효하지 않은 포트는 기본값 유지
			assert.Equal(t, DefaultPort, cfg.Port)
		})
	}
}

func TestLoadConfig_FirstFileWins(t *testing.T) {
	// 먼저 발견된 파일이 검색을 끝냅니다
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeConfigFile(t, dirA, "port: 8001\n")
	writeConfigFile(t, dirB, "port: 8002\n")

	cfg := LoadConfig([]string{dirA, dirB}, zap.NewNop())

	assert.Equal(t, 8001, cfg.Port)
}

func TestLoadConfig_SkipsDirsWithoutFile(t *testing.T) {
	// 첫 디렉토리에 파일이 없으면 다음 디렉토리로 넘어갑니다
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeConfigFile(t, dirB, "port: 7000\n")

	cfg := LoadConfig([]string{dirA, dirB}, zap.NewNop())

	assert.Equal(t, 7000, cfg.Port)
}

func TestLoadConfig_ParseFailureStopsSearch(t *testing.T) {
	// 파싱에 실패해도 이후 디렉토리는 시도하지 않습니다
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeConfigFile(t, dirA, "port: [broken\n")
	writeConfigFile(t, dirB, "port: 7000\n")

	cfg := LoadConfig([]string{dirA, dirB}, zap.NewNop())

	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestLoadConfig_UnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "port: 8080\nunknown_key: value\n")

	cfg := LoadConfig([]string{dir}, zap.NewNop())

	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadConfig_EngineSection(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
engine:
  command: 'my-engine "$RTSP_PIPELINE"'
  start_timeout: 5
  idle_timeout: 60
  restart: false
`)

	cfg := LoadConfig([]string{dir}, zap.NewNop())

	assert.Equal(t, `my-engine "$RTSP_PIPELINE"`, cfg.Engine.Command)
	assert.Equal(t, 5, cfg.Engine.StartTimeout)
	assert.Equal(t, 60, cfg.Engine.IdleTimeout)
	assert.False(t, cfg.Engine.Restart)
}

func TestLoadConfig_InvalidEngineValuesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
engine:
  command: ""
  start_timeout: -1
  idle_timeout: -5
`)

	cfg := LoadConfig([]string{dir}, zap.NewNop())
	def := DefaultConfig()

	assert.Equal(t, def.Engine.Command, cfg.Engine.Command)
	assert.Equal(t, def.Engine.StartTimeout, cfg.Engine.StartTimeout)
	assert.Equal(t, def.Engine.IdleTimeout, cfg.Engine.IdleTimeout)
}

func TestLoadConfig_LoggingSection(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
logging:
  level: debug
  output: both
  file_path: /tmp/test.log
`)

	cfg := LoadConfig([]string{dir}, zap.NewNop())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "/tmp/test.log", cfg.Logging.FilePath)
}

func TestLoadConfig_InvalidLoggingValuesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
logging:
  level: verbose
  output: syslog
`)

	cfg := LoadConfig([]string{dir}, zap.NewNop())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Output)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.Command = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dirs := ConfigDirs()

	require.Len(t, dirs, 2)
	assert.Equal(t, "/custom/config/rtsp-test-server", dirs[0])
	assert.Equal(t, "/etc/rtsp-test-server", dirs[1])
}

func TestEngineConfigDurations(t *testing.T) {
	cfg := EngineConfig{StartTimeout: 10, IdleTimeout: 60}

	assert.Equal(t, "10s", cfg.GetStartTimeout().String())
	assert.Equal(t, "1m0s", cfg.GetIdleTimeout().String())
}
