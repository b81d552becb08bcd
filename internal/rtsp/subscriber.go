package rtsp

import (
	"fmt"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/google/uuid"
	"github.com/yourusername/rtsp-test-server/internal/core"
	"go.uber.org/zap"
)

// Subscriber는 코어 스트림의 패킷을 ServerStream에 중계합니다
// gortsplib가 ServerStream에 붙은 모든 재생 세션으로 전파하므로
// 경로당 중계 구독자 하나로 공유 세션 시맨틱이 구현됩니다
type Subscriber struct {
	id           string
	path         string
	serverStream *gortsplib.ServerStream
	medias       []*description.Media
	logger       *zap.Logger
}

// SubscriberConfig는 Subscriber 설정입니다
type SubscriberConfig struct {
	Path         string
	ServerStream *gortsplib.ServerStream
	Medias       []*description.Media
	Logger       *zap.Logger
}

// NewSubscriber는 새로운 중계 구독자를 생성합니다
func NewSubscriber(config SubscriberConfig) *Subscriber {
	return &Subscriber{
		id:           uuid.NewString(),
		path:         config.Path,
		serverStream: config.ServerStream,
		medias:       config.Medias,
		logger:       config.Logger,
	}
}

// GetID는 구독자 ID를 반환합니다 (core.StreamSubscriber 인터페이스)
func (s *Subscriber) GetID() string {
	return s.id
}

// OnPacket은 코어 스트림으로부터 패킷을 받아 재생 세션들에 전송합니다
func (s *Subscriber) OnPacket(pkt *core.StreamPacket) error {
	if pkt.Track < 0 || pkt.Track >= len(s.medias) {
		return fmt.Errorf("invalid track index %d on %s", pkt.Track, s.path)
	}

	if err := s.serverStream.WritePacketRTP(s.medias[pkt.Track], pkt.RTP); err != nil {
		return fmt.Errorf("failed to write RTP packet: %w", err)
	}

	return nil
}
