package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// vaapiDriverEnv는 하드웨어 가속 드라이버 선택 환경 변수입니다
// 소프트웨어 인코더만 사용하므로 불안정한 드라이버 탐색을 막기 위해
// 엔진 초기화 전에 더미 값으로 고정합니다
const (
	vaapiDriverEnv      = "LIBVA_DRIVER_NAME"
	vaapiDriverSentinel = "null"
)

// Config는 엔진 프로세스 실행 설정입니다
type Config struct {
	// Command는 파이프라인별로 실행되는 셸 커맨드입니다
	// RTSP_PIPELINE, RTSP_URL, RTSP_PORT, RTSP_PATH 환경 변수가 주입됩니다
	Command     string
	IdleTimeout time.Duration
	Restart     bool
}

// Pipeline은 실행 중인 파이프라인 프로세스 정보입니다
type Pipeline struct {
	Path         string
	Cmd          *exec.Cmd
	Desc         string
	URL          string
	cancelFunc   context.CancelFunc
	lastActivity time.Time
	stopping     bool
	mu           sync.RWMutex
}

// Engine은 외부 스트리밍 엔진과의 경계입니다
// 마운트 포인트마다 파이프라인 기술 문자열을 엔진 프로세스에 넘기고
// 프로세스 수명(재시작, 비활성 종료)을 관리합니다
type Engine struct {
	config    Config
	pipelines map[string]*Pipeline
	mu        sync.RWMutex
	logger    *zap.Logger
}

// New는 새로운 엔진 경계를 생성합니다
func New(config Config, logger *zap.Logger) *Engine {
	return &Engine{
		config:    config,
		pipelines: make(map[string]*Pipeline),
		logger:    logger,
	}
}

// Init은 엔진 사용 전 환경을 준비합니다
// 환경에 이미 설정된 드라이버 값은 존중합니다
func Init(logger *zap.Logger) error {
	if _, exists := os.LookupEnv(vaapiDriverEnv); !exists {
		if err := os.Setenv(vaapiDriverEnv, vaapiDriverSentinel); err != nil {
			return fmt.Errorf("failed to set %s: %w", vaapiDriverEnv, err)
		}
		logger.Info("Hardware acceleration probing disabled",
			zap.String("env", vaapiDriverEnv),
			zap.String("value", vaapiDriverSentinel),
		)
	}
	return nil
}

// StartPipeline은 마운트 포인트의 파이프라인 프로세스를 시작합니다
// 이미 실행 중이면 에러를 반환합니다
func (e *Engine) StartPipeline(path, desc, attachURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.startLocked(path, desc, attachURL)
}

func (e *Engine) startLocked(path, desc, attachURL string) error {
	if p, exists := e.pipelines[path]; exists {
		if p.Cmd != nil && p.Cmd.Process != nil {
			return fmt.Errorf("pipeline for %s is already running", path)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, "sh", "-c", e.config.Command)
	cmd.Env = append(os.Environ(), pipelineEnv(path, desc, attachURL)...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start pipeline process: %w", err)
	}

	p := &Pipeline{
		Path:         path,
		Cmd:          cmd,
		Desc:         desc,
		URL:          attachURL,
		cancelFunc:   cancel,
		lastActivity: time.Now(),
	}

	e.pipelines[path] = p

	e.logger.Info("Pipeline started",
		zap.String("path", path),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("url", attachURL),
	)

	// 프로세스 감시 고루틴 시작
	go e.monitorPipeline(p)

	return nil
}

// pipelineEnv는 엔진 프로세스에 주입되는 환경 변수를 구성합니다
func pipelineEnv(path, desc, rawURL string) []string {
	env := []string{
		"RTSP_PIPELINE=" + desc,
		"RTSP_URL=" + rawURL,
		"RTSP_PATH=" + path,
	}
	if u, err := url.Parse(rawURL); err == nil {
		env = append(env, "RTSP_PORT="+u.Port())
	}
	return env
}

// EnsurePipeline은 파이프라인이 실행 중이 아니면 시작합니다
// 이미 실행 중이면 아무 것도 하지 않습니다 (동시 DESCRIBE 경합 대비)
func (e *Engine) EnsurePipeline(path, desc, attachURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, exists := e.pipelines[path]; exists {
		if p.Cmd != nil && p.Cmd.Process != nil {
			return nil
		}
	}

	return e.startLocked(path, desc, attachURL)
}

// StopPipeline은 파이프라인 프로세스를 중지합니다
func (e *Engine) StopPipeline(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, exists := e.pipelines[path]
	if !exists {
		return fmt.Errorf("pipeline for %s not found", path)
	}

	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()

	// Context 취소로 프로세스 종료
	if p.cancelFunc != nil {
		p.cancelFunc()
	}

	delete(e.pipelines, path)

	e.logger.Info("Pipeline stopped", zap.String("path", path))

	return nil
}

// IsRunning은 파이프라인이 실행 중인지 확인합니다
func (e *Engine) IsRunning(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, exists := e.pipelines[path]
	if !exists {
		return false
	}

	return p.Cmd != nil && p.Cmd.Process != nil
}

// UpdateActivity는 파이프라인의 마지막 활동 시간을 갱신합니다
func (e *Engine) UpdateActivity(path string) {
	e.mu.RLock()
	p, exists := e.pipelines[path]
	e.mu.RUnlock()

	if !exists {
		return
	}

	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

// monitorPipeline은 프로세스를 감시하고 필요시 재시작합니다
func (e *Engine) monitorPipeline(p *Pipeline) {
	err := p.Cmd.Wait()

	p.mu.RLock()
	stopping := p.stopping
	p.mu.RUnlock()

	if stopping {
		return
	}

	e.logger.Warn("Pipeline exited unexpectedly",
		zap.String("path", p.Path),
		zap.Error(err),
	)

	e.mu.Lock()
	delete(e.pipelines, p.Path)

	// 예기치 않은 종료 시 재시작
	if e.config.Restart {
		e.mu.Unlock()
		time.Sleep(2 * time.Second)

		e.mu.Lock()
		e.logger.Info("Restarting pipeline", zap.String("path", p.Path))
		if err := e.startLocked(p.Path, p.Desc, p.URL); err != nil {
			e.logger.Error("Failed to restart pipeline",
				zap.String("path", p.Path),
				zap.Error(err),
			)
		}
	}
	e.mu.Unlock()
}

// StartInactivityMonitor는 비활성 파이프라인을 정리하는 고루틴을 실행합니다
// IdleTimeout이 0이면 아무 것도 하지 않습니다
func (e *Engine) StartInactivityMonitor(ctx context.Context) {
	if e.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkInactivePipelines()
		}
	}
}

// checkInactivePipelines는 비활성 파이프라인을 확인하고 종료합니다
func (e *Engine) checkInactivePipelines() {
	e.mu.RLock()
	var toStop []string

	for path, p := range e.pipelines {
		p.mu.RLock()
		inactive := time.Since(p.lastActivity)
		p.mu.RUnlock()

		if inactive > e.config.IdleTimeout {
			toStop = append(toStop, path)
		}
	}
	e.mu.RUnlock()

	for _, path := range toStop {
		e.logger.Info("Stopping inactive pipeline",
			zap.String("path", path),
			zap.String("idle_timeout", e.config.IdleTimeout.String()),
		)
		if err := e.StopPipeline(path); err != nil {
			e.logger.Error("Failed to stop inactive pipeline",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

// StopAll은 모든 파이프라인을 중지합니다
func (e *Engine) StopAll() {
	e.mu.Lock()
	paths := make([]string, 0, len(e.pipelines))
	for path := range e.pipelines {
		paths = append(paths, path)
	}
	e.mu.Unlock()

	for _, path := range paths {
		if err := e.StopPipeline(path); err != nil {
			e.logger.Error("Failed to stop pipeline",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

// PipelineCount는 실행 중인 파이프라인 수를 반환합니다
func (e *Engine) PipelineCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pipelines)
}
