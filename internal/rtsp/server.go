package rtsp

import (
	"context"
	"fmt"
	"net"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/google/uuid"
	"github.com/yourusername/rtsp-test-server/internal/core"
	"github.com/yourusername/rtsp-test-server/internal/engine"
	"go.uber.org/zap"
)

// Server는 RTSP 서버를 나타냅니다
// 클라이언트에게는 재생 전용이며, publish는 로컬 엔진 프로세스만 허용됩니다
type Server struct {
	port        int
	server      *gortsplib.Server
	pathManager *PathManager
	logger      *zap.Logger
	ctx         context.Context
	ctxCancel   context.CancelFunc
}

// ServerConfig는 RTSP 서버 설정입니다
type ServerConfig struct {
	Port          int
	StreamManager *core.StreamManager
	Engine        *engine.Engine
	EngineConfig  core.EngineConfig
	Logger        *zap.Logger
}

// NewServer는 새로운 RTSP 서버를 생성합니다
func NewServer(config ServerConfig) (*Server, error) {
	if config.Port <= 0 || config.Port >= 65535 {
		return nil, fmt.Errorf("invalid service port: %d", config.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		port:      config.Port,
		logger:    config.Logger,
		ctx:       ctx,
		ctxCancel: cancel,
	}

	s.pathManager = NewPathManager(
		config.StreamManager,
		config.Engine,
		config.Port,
		config.EngineConfig.GetStartTimeout(),
		config.Logger,
	)

	s.server = &gortsplib.Server{
		Handler:     s,
		RTSPAddress: fmt.Sprintf(":%d", config.Port),
	}

	return s, nil
}

// PathManager는 마운트 테이블을 반환합니다 (등록용)
func (s *Server) PathManager() *PathManager {
	return s.pathManager
}

// Start는 RTSP 서버를 시작합니다
func (s *Server) Start() error {
	s.logger.Info("Starting RTSP server", zap.Int("port", s.port))

	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start RTSP server: %w", err)
	}

	go s.pathManager.StartActivityMonitor(s.ctx)

	s.logger.Info("RTSP server started successfully", zap.Int("port", s.port))
	return nil
}

// Stop은 RTSP 서버를 중지합니다
func (s *Server) Stop() {
	s.logger.Info("Stopping RTSP server")

	s.ctxCancel()
	if s.server != nil {
		s.server.Close()
	}

	s.logger.Info("RTSP server stopped")
}

// OnConnOpen는 클라이언트 연결 시 호출됩니다 (gortsplib.ServerHandlerOnConnOpen)
func (s *Server) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	s.logger.Info("RTSP client connected",
		zap.String("remote_addr", ctx.Conn.NetConn().RemoteAddr().String()),
	)
}

// OnConnClose는 클라이언트 종료 시 호출됩니다 (gortsplib.ServerHandlerOnConnClose)
func (s *Server) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	s.logger.Info("RTSP client disconnected",
		zap.String("remote_addr", ctx.Conn.NetConn().RemoteAddr().String()),
	)
}

// OnSessionOpen은 세션 생성 시 호출됩니다 (gortsplib.ServerHandlerOnSessionOpen)
func (s *Server) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	s.logger.Debug("RTSP session opened")
}

// OnSessionClose는 세션 종료 시 호출됩니다 (gortsplib.ServerHandlerOnSessionClose)
func (s *Server) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	s.pathManager.RemoveSession(ctx.Session)
}

// OnDescribe는 DESCRIBE 요청 시 호출됩니다 (gortsplib.ServerHandlerOnDescribe)
// 등록된 마운트면 파이프라인을 필요 시 기동하고 스트림 기술을 반환합니다
func (s *Server) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	pathName := ctx.Path
	s.logger.Info("DESCRIBE request received",
		zap.String("path", pathName),
		zap.String("remote_addr", ctx.Conn.NetConn().RemoteAddr().String()),
	)

	if _, err := s.pathManager.GetPath(pathName); err != nil {
		s.logger.Warn("DESCRIBE for unknown path", zap.String("path", pathName))
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil, nil
	}

	stream, err := s.pathManager.EnsureReady(pathName)
	if err != nil {
		s.logger.Error("Failed to prepare stream",
			zap.String("path", pathName),
			zap.Error(err),
		)
		return &base.Response{
			StatusCode: base.StatusInternalServerError,
		}, nil, nil
	}

	return &base.Response{
		StatusCode: base.StatusOK,
	}, stream, nil
}

// OnAnnounce는 ANNOUNCE 요청 시 호출됩니다 (gortsplib.ServerHandlerOnAnnounce)
// 엔진 프로세스의 publish만 허용합니다: 등록된 마운트 + 루프백 연결
func (s *Server) OnAnnounce(ctx *gortsplib.ServerHandlerOnAnnounceCtx) (*base.Response, error) {
	pathName := ctx.Path
	remoteAddr := ctx.Conn.NetConn().RemoteAddr().String()

	s.logger.Info("ANNOUNCE request received",
		zap.String("path", pathName),
		zap.String("remote_addr", remoteAddr),
	)

	if !isLoopback(remoteAddr) {
		s.logger.Warn("ANNOUNCE rejected: not from loopback",
			zap.String("path", pathName),
			zap.String("remote_addr", remoteAddr),
		)
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, fmt.Errorf("publish is only allowed from the local engine")
	}

	if err := s.pathManager.SetPublisher(pathName, ctx.Session, ctx.Description, s.server); err != nil {
		s.logger.Error("Failed to register publisher",
			zap.String("path", pathName),
			zap.Error(err),
		)
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, err
	}

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// OnSetup은 SETUP 요청 시 호출됩니다 (gortsplib.ServerHandlerOnSetup)
func (s *Server) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	pathName := ctx.Path

	// 발행자 세션의 SETUP에는 스트림이 필요 없습니다
	if s.pathManager.IsPublisherSession(ctx.Session) {
		return &base.Response{
			StatusCode: base.StatusOK,
		}, nil, nil
	}

	path, err := s.pathManager.GetPath(pathName)
	if err != nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil, nil
	}

	stream := path.ServerStream()
	if stream == nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil, nil
	}

	return &base.Response{
		StatusCode: base.StatusOK,
	}, stream, nil
}

// OnPlay는 PLAY 요청 시 호출됩니다 (gortsplib.ServerHandlerOnPlay)
func (s *Server) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	pathName := ctx.Path
	viewerID := uuid.NewString()

	count, err := s.pathManager.AddViewer(pathName, ctx.Session, viewerID)
	if err != nil {
		s.logger.Error("Failed to register viewer",
			zap.String("path", pathName),
			zap.Error(err),
		)
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, err
	}

	s.logger.Info("Viewer registered",
		zap.String("path", pathName),
		zap.String("viewer_id", viewerID),
		zap.Int("total_viewers", count),
	)

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// OnRecord는 RECORD 요청 시 호출됩니다 (gortsplib.ServerHandlerOnRecord)
// 엔진 발행자가 실제로 미디어를 밀어넣기 시작할 때입니다
func (s *Server) OnRecord(ctx *gortsplib.ServerHandlerOnRecordCtx) (*base.Response, error) {
	pathName := ctx.Path

	if err := s.pathManager.ActivatePublisher(pathName, ctx.Session); err != nil {
		s.logger.Error("Failed to activate publisher",
			zap.String("path", pathName),
			zap.Error(err),
		)
		return &base.Response{
			StatusCode: base.StatusBadRequest,
		}, err
	}

	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// isLoopback은 원격 주소가 루프백인지 확인합니다
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
