package rtsp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/yourusername/rtsp-test-server/internal/core"
	"github.com/yourusername/rtsp-test-server/internal/engine"
	"go.uber.org/zap"
)

// PathManager는 서버의 마운트 포인트 테이블입니다
// 등록된 경로별로 파이프라인 기동, 발행자/구독자 세션을 관리합니다
type PathManager struct {
	paths map[string]*Path
	order []string // 등록 순서 (URL 요약 로그용)

	sessions map[*gortsplib.ServerSession]*sessionRef

	streamManager *core.StreamManager
	engine        *engine.Engine
	port          int
	startTimeout  time.Duration
	logger        *zap.Logger
	mu            sync.RWMutex
}

// sessionRef는 세션과 경로의 연결 정보입니다
type sessionRef struct {
	path      *Path
	viewerID  string
	publisher bool
}

// Path는 단일 마운트 포인트를 나타냅니다
type Path struct {
	name    string
	factory *MediaFactory
	stream  *core.Stream

	publisherSession *gortsplib.ServerSession
	publisher        *Publisher
	relay            *Subscriber
	serverStream     *gortsplib.ServerStream
	ready            chan struct{}

	viewers map[*gortsplib.ServerSession]string

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewPathManager는 새로운 마운트 테이블을 생성합니다
func NewPathManager(streamManager *core.StreamManager, eng *engine.Engine,
	port int, startTimeout time.Duration, logger *zap.Logger) *PathManager {
	return &PathManager{
		paths:         make(map[string]*Path),
		sessions:      make(map[*gortsplib.ServerSession]*sessionRef),
		streamManager: streamManager,
		engine:        eng,
		port:          port,
		startTimeout:  startTimeout,
		logger:        logger,
	}
}

// AddMount는 팩토리를 경로에 등록합니다
// 경로가 이미 사용 중이거나 유효하지 않으면 에러를 반환합니다
func (pm *PathManager) AddMount(pathName string, factory *MediaFactory) error {
	name := trimPath(pathName)
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid mount path: %q", pathName)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.paths[name]; exists {
		return fmt.Errorf("mount path already registered: %s", pathName)
	}

	stream, err := pm.streamManager.CreateStream(name)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	pm.paths[name] = &Path{
		name:    name,
		factory: factory,
		stream:  stream,
		ready:   make(chan struct{}),
		viewers: make(map[*gortsplib.ServerSession]string),
		logger:  pm.logger,
	}
	pm.order = append(pm.order, name)

	return nil
}

// GetPath는 등록된 경로를 조회합니다
func (pm *PathManager) GetPath(pathName string) (*Path, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	path, exists := pm.paths[trimPath(pathName)]
	if !exists {
		return nil, fmt.Errorf("path not found: %s", pathName)
	}

	return path, nil
}

// MountPaths는 등록 순서대로 마운트 경로 목록을 반환합니다
func (pm *PathManager) MountPaths() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	paths := make([]string, len(pm.order))
	for i, name := range pm.order {
		paths[i] = "/" + name
	}
	return paths
}

// EnsureReady는 경로의 파이프라인을 필요 시 기동하고 ServerStream을 반환합니다
// 발행자가 붙을 때까지 startTimeout 한도 내에서 대기합니다
func (pm *PathManager) EnsureReady(pathName string) (*gortsplib.ServerStream, error) {
	path, err := pm.GetPath(pathName)
	if err != nil {
		return nil, err
	}

	if ss := path.ServerStream(); ss != nil {
		return ss, nil
	}

	attachURL := fmt.Sprintf("rtsp://127.0.0.1:%d/%s", pm.port, path.name)
	if err := pm.engine.EnsurePipeline(path.name, path.factory.Launch, attachURL); err != nil {
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	select {
	case <-path.Ready():
		ss := path.ServerStream()
		if ss == nil {
			return nil, fmt.Errorf("pipeline for %s went away", pathName)
		}
		return ss, nil
	case <-time.After(pm.startTimeout):
		return nil, fmt.Errorf("pipeline for %s not ready within %s", pathName, pm.startTimeout)
	}
}

// SetPublisher는 ANNOUNCE한 엔진 세션을 경로의 발행자로 등록합니다
func (pm *PathManager) SetPublisher(pathName string, session *gortsplib.ServerSession,
	desc *description.Session, server *gortsplib.Server) error {
	path, err := pm.GetPath(pathName)
	if err != nil {
		return err
	}

	path.mu.Lock()
	defer path.mu.Unlock()

	// 공유 세션 모델: 경로당 파이프라인(발행자)은 하나뿐입니다
	if path.publisher != nil {
		return fmt.Errorf("path %s already has a publisher", path.name)
	}

	serverStream := &gortsplib.ServerStream{
		Server: server,
		Desc:   desc,
	}
	if err := serverStream.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize server stream: %w", err)
	}

	publisher, err := NewPublisher(PublisherConfig{
		Path:    path.name,
		Session: session,
		Stream:  path.stream,
		Medias:  desc.Medias,
		Logger:  pm.logger,
	})
	if err != nil {
		serverStream.Close()
		return err
	}

	// 발행자의 패킷을 모든 재생 세션에 중계하는 구독자 등록
	relay := NewSubscriber(SubscriberConfig{
		Path:         path.name,
		ServerStream: serverStream,
		Medias:       desc.Medias,
		Logger:       pm.logger,
	})
	if err := path.stream.Subscribe(relay); err != nil {
		serverStream.Close()
		return fmt.Errorf("failed to subscribe relay: %w", err)
	}

	path.publisherSession = session
	path.publisher = publisher
	path.relay = relay
	path.serverStream = serverStream
	close(path.ready)

	pm.mu.Lock()
	pm.sessions[session] = &sessionRef{path: path, publisher: true}
	pm.mu.Unlock()

	pm.logger.Info("Publisher registered",
		zap.String("path", path.name),
		zap.Int("media_count", len(desc.Medias)),
	)

	return nil
}

// ActivatePublisher는 RECORD를 시작한 발행자의 패킷 수신을 활성화합니다
func (pm *PathManager) ActivatePublisher(pathName string, session *gortsplib.ServerSession) error {
	path, err := pm.GetPath(pathName)
	if err != nil {
		return err
	}

	path.mu.RLock()
	publisher := path.publisher
	owner := path.publisherSession
	path.mu.RUnlock()

	if publisher == nil || owner != session {
		return fmt.Errorf("no publisher registered for %s", pathName)
	}

	return publisher.Activate(session)
}

// AddViewer는 PLAY를 시작한 재생 세션을 경로에 등록합니다
func (pm *PathManager) AddViewer(pathName string, session *gortsplib.ServerSession,
	viewerID string) (int, error) {
	path, err := pm.GetPath(pathName)
	if err != nil {
		return 0, err
	}

	path.mu.Lock()
	if _, exists := path.viewers[session]; exists {
		path.mu.Unlock()
		return 0, fmt.Errorf("session already playing on %s", pathName)
	}
	path.viewers[session] = viewerID
	count := len(path.viewers)
	path.mu.Unlock()

	pm.mu.Lock()
	pm.sessions[session] = &sessionRef{path: path, viewerID: viewerID}
	pm.mu.Unlock()

	pm.engine.UpdateActivity(path.name)

	return count, nil
}

// RemoveSession은 종료된 세션을 정리합니다
// 발행자 세션이면 경로를 준비 안 됨 상태로 되돌립니다
func (pm *PathManager) RemoveSession(session *gortsplib.ServerSession) {
	pm.mu.Lock()
	ref, exists := pm.sessions[session]
	if exists {
		delete(pm.sessions, session)
	}
	pm.mu.Unlock()

	if !exists {
		return
	}

	if ref.publisher {
		ref.path.removePublisher()
		pm.logger.Info("Publisher removed",
			zap.String("path", ref.path.name),
		)
		return
	}

	ref.path.mu.Lock()
	delete(ref.path.viewers, session)
	remaining := len(ref.path.viewers)
	ref.path.mu.Unlock()

	pm.logger.Info("Viewer removed",
		zap.String("path", ref.path.name),
		zap.String("viewer_id", ref.viewerID),
		zap.Int("remaining_viewers", remaining),
	)
}

// IsPublisherSession은 세션이 어떤 경로의 발행자인지 확인합니다
func (pm *PathManager) IsPublisherSession(session *gortsplib.ServerSession) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	ref, exists := pm.sessions[session]
	return exists && ref.publisher
}

// StartActivityMonitor는 시청자가 있는 경로의 파이프라인 활동 시간을 주기적으로 갱신합니다
// 비활성 종료가 켜진 경우 시청자가 모두 떠난 파이프라인만 정리되도록 합니다
func (pm *PathManager) StartActivityMonitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.refreshActivity()
		}
	}
}

func (pm *PathManager) refreshActivity() {
	pm.mu.RLock()
	paths := make([]*Path, 0, len(pm.paths))
	for _, path := range pm.paths {
		paths = append(paths, path)
	}
	pm.mu.RUnlock()

	for _, path := range paths {
		path.mu.RLock()
		hasViewers := len(path.viewers) > 0
		path.mu.RUnlock()

		if hasViewers {
			pm.engine.UpdateActivity(path.name)
		}
	}
}

// Ready는 발행자가 붙으면 닫히는 채널을 반환합니다
func (p *Path) Ready() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// ServerStream은 현재 ServerStream을 반환합니다 (준비 안 됨이면 nil)
func (p *Path) ServerStream() *gortsplib.ServerStream {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.serverStream
}

// Factory는 경로에 등록된 팩토리를 반환합니다
func (p *Path) Factory() *MediaFactory {
	return p.factory
}

// ViewerCount는 현재 재생 중인 세션 수를 반환합니다
func (p *Path) ViewerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.viewers)
}

// Stream은 경로의 코어 스트림을 반환합니다
func (p *Path) Stream() *core.Stream {
	return p.stream
}

// removePublisher는 발행자 관련 상태를 정리하고 경로를 초기 상태로 되돌립니다
func (p *Path) removePublisher() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.publisher == nil {
		return
	}

	if p.relay != nil {
		if err := p.stream.Unsubscribe(p.relay.GetID()); err != nil {
			p.logger.Debug("Failed to unsubscribe relay",
				zap.String("path", p.name),
				zap.Error(err),
			)
		}
	}
	if p.serverStream != nil {
		p.serverStream.Close()
	}

	p.publisher = nil
	p.publisherSession = nil
	p.relay = nil
	p.serverStream = nil
	p.ready = make(chan struct{})
}
