package rtsp

import (
	"fmt"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"github.com/yourusername/rtsp-test-server/internal/core"
	"go.uber.org/zap"
)

// Publisher는 엔진 프로세스가 RECORD로 밀어넣는 미디어를 수신합니다
// 받은 RTP 패킷은 경로의 코어 스트림으로 전달됩니다
type Publisher struct {
	path    string
	session *gortsplib.ServerSession
	stream  *core.Stream
	medias  []*description.Media
	logger  *zap.Logger
	active  bool
}

// PublisherConfig는 Publisher 설정입니다
type PublisherConfig struct {
	Path    string
	Session *gortsplib.ServerSession
	Stream  *core.Stream
	Medias  []*description.Media
	Logger  *zap.Logger
}

// NewPublisher는 새로운 Publisher를 생성합니다
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if len(config.Medias) == 0 {
		return nil, fmt.Errorf("publisher for %s has no medias", config.Path)
	}

	return &Publisher{
		path:    config.Path,
		session: config.Session,
		stream:  config.Stream,
		medias:  config.Medias,
		logger:  config.Logger,
	}, nil
}

// Activate는 패킷 수신 콜백을 등록합니다 (RECORD 시작)
func (p *Publisher) Activate(session *gortsplib.ServerSession) error {
	if p.active {
		return fmt.Errorf("publisher already active")
	}

	session.OnPacketRTPAny(func(medi *description.Media, forma format.Format, pkt *rtp.Packet) {
		track := p.trackIndex(medi)
		if track < 0 {
			return
		}

		if err := p.stream.WritePacket(&core.StreamPacket{Track: track, RTP: pkt}); err != nil {
			p.logger.Debug("Failed to write packet to stream",
				zap.String("path", p.path),
				zap.Error(err),
			)
		}
	})

	p.active = true
	p.logger.Info("Publisher activated",
		zap.String("path", p.path),
	)

	return nil
}

// trackIndex는 미디어의 세션 내 인덱스를 찾습니다
func (p *Publisher) trackIndex(medi *description.Media) int {
	for i, m := range p.medias {
		if m == medi {
			return i
		}
	}
	return -1
}
