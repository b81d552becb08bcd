package signals

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/yourusername/rtsp-test-server/internal/core"
	"go.uber.org/zap"
)

// crashSignals는 프로세스를 즉시 종료시켜야 하는 시그널들입니다
// 로그 후 기본 처리로 되돌려 재전달하므로 코어 덤프와 종료 코드가 보존됩니다
var crashSignals = []os.Signal{
	syscall.SIGSEGV,
	syscall.SIGABRT,
	syscall.SIGFPE,
	syscall.SIGBUS,
	syscall.SIGILL,
}

// gracefulSignals는 정상 종료를 요청하는 시그널들입니다
var gracefulSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Governor는 프로세스 전역 시그널 처리를 담당합니다
//
// 루프 핸들은 시작 초기에 한 번만 설정되고 이후에는 읽기만 하므로
// 시그널 전달과 메인 플로우 사이의 공유 상태는 이 포인터 하나뿐입니다
// 핸들이 설정되기 전에 시그널이 도착하면 종료 요청은 무시됩니다
type Governor struct {
	logger *zap.Logger
	loop   atomic.Pointer[core.Loop]
	sigCh  chan os.Signal
}

// NewGovernor는 새로운 시그널 거버너를 생성합니다
func NewGovernor(logger *zap.Logger) *Governor {
	return &Governor{
		logger: logger,
	}
}

// Install은 시그널 핸들러를 등록하고 전달 고루틴을 시작합니다
// 서버 객체 생성 전에 호출해야 초기화 중의 크래시도 잡힙니다
func (g *Governor) Install() {
	g.sigCh = make(chan os.Signal, 8)

	signal.Notify(g.sigCh, crashSignals...)
	signal.Notify(g.sigCh, gracefulSignals...)

	go g.dispatch()
}

// SetLoop는 메인 루프 핸들을 공개합니다
// 루프 생성 직후 한 번만 호출됩니다
func (g *Governor) SetLoop(loop *core.Loop) {
	g.loop.Store(loop)
}

// dispatch는 전달된 시그널을 처리합니다
func (g *Governor) dispatch() {
	for sig := range g.sigCh {
		g.handleSignal(sig)
	}
}

// handleSignal은 시그널을 분류하고 해당 동작을 수행합니다
func (g *Governor) handleSignal(sig os.Signal) {
	if isCrashSignal(sig) {
		// 크래시 시그널: 로그를 플러시하고 기본 처리로 재전달
		// 시그널 컨텍스트이므로 로깅은 best-effort로 취급합니다
		g.logger.Error("Server crashed with signal",
			zap.Int("signal", signalNumber(sig)),
			zap.String("name", sig.String()),
		)
		_ = g.logger.Sync()

		signal.Reset(sig)
		raise(sig)
		return
	}

	// 정상 종료 시그널
	g.logger.Info("Received signal, shutting down...",
		zap.Int("signal", signalNumber(sig)),
		zap.String("name", sig.String()),
	)

	if loop := g.loop.Load(); loop != nil {
		loop.Stop()
	}
}

// isCrashSignal은 시그널이 크래시 집합에 속하는지 판단합니다
func isCrashSignal(sig os.Signal) bool {
	for _, s := range crashSignals {
		if sig == s {
			return true
		}
	}
	return false
}

// signalNumber는 시그널 번호를 반환합니다
func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return -1
}

// raise는 시그널을 현재 프로세스에 다시 보냅니다
func raise(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		os.Exit(1)
	}
	_ = syscall.Kill(syscall.Getpid(), s)
}
