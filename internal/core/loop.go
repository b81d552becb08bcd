package core

import "sync"

// Loop는 프로세스 수명 동안 한 번 실행되는 메인 루프입니다
// Stop은 어느 고루틴에서든 (시그널 핸들러 포함) 중복 호출해도 안전합니다
type Loop struct {
	done chan struct{}
	once sync.Once
}

// NewLoop는 새로운 메인 루프를 생성합니다
func NewLoop() *Loop {
	return &Loop{
		done: make(chan struct{}),
	}
}

// Run은 Stop이 호출될 때까지 블록합니다
func (l *Loop) Run() {
	<-l.done
}

// Stop은 루프 종료를 요청합니다
// Run 이전에 호출되어도 안전하며, 이 경우 Run은 즉시 반환합니다
func (l *Loop) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

// Stopped는 종료가 요청되었는지 확인합니다
func (l *Loop) Stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
