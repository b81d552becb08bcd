package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"go.uber.org/zap"
)

// StreamPacket은 스트림을 통과하는 RTP 패킷입니다
// Track은 발행자 세션의 미디어 인덱스 (비디오/오디오 구분용)
type StreamPacket struct {
	Track int
	RTP   *rtp.Packet
}

// StreamSubscriber는 스트림 구독자 인터페이스
type StreamSubscriber interface {
	OnPacket(packet *StreamPacket) error
	GetID() string
}

// StreamStats는 스트림 통계 스냅샷입니다
type StreamStats struct {
	PacketsReceived uint64
	PacketsSent     uint64
	BytesReceived   uint64
	DroppedPackets  uint64
}

// StreamManager는 마운트 포인트별 스트림을 관리합니다
type StreamManager struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	logger    *zap.Logger

	streams map[string]*Stream
	mutex   sync.RWMutex

	bufferSize int
}

// subscriberWorker는 구독자와 전용 패킷 채널을 관리합니다
// 느린 구독자가 발행자를 막지 않도록 채널이 가득 차면 패킷을 버립니다
type subscriberWorker struct {
	sub        StreamSubscriber
	packetChan chan *StreamPacket
	cancel     context.CancelFunc
}

// Stream은 단일 마운트 포인트의 미디어 스트림을 나타냅니다
type Stream struct {
	id     string
	logger *zap.Logger

	// 구독자 관리
	subscribers map[string]*subscriberWorker
	subMutex    sync.RWMutex

	// 통계 (atomic으로 lock-free)
	packetsReceived atomic.Uint64
	packetsSent     atomic.Uint64
	bytesReceived   atomic.Uint64
	droppedPackets  atomic.Uint64

	// 버퍼링
	packetBuffer chan *StreamPacket

	// 스트림 종료 상태
	closed     bool
	closeMutex sync.RWMutex

	ctx context.Context
}

// NewStreamManager는 새로운 스트림 관리자를 생성합니다
func NewStreamManager(logger *zap.Logger, bufferSize int) *StreamManager {
	ctx, cancel := context.WithCancel(context.Background())

	if bufferSize <= 0 {
		bufferSize = 500
	}

	return &StreamManager{
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     logger,
		streams:    make(map[string]*Stream),
		bufferSize: bufferSize,
	}
}

// CreateStream은 새로운 스트림을 생성합니다
func (sm *StreamManager) CreateStream(id string) (*Stream, error) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.streams[id]; exists {
		return nil, fmt.Errorf("stream %s already exists", id)
	}

	stream := &Stream{
		id:           id,
		logger:       sm.logger.With(zap.String("stream_id", id)),
		subscribers:  make(map[string]*subscriberWorker),
		packetBuffer: make(chan *StreamPacket, sm.bufferSize),
		ctx:          sm.ctx,
	}

	sm.streams[id] = stream

	// 패킷 배포 고루틴 시작
	go stream.distributePackets()

	sm.logger.Info("Stream created", zap.String("stream_id", id))

	return stream, nil
}

// GetStream은 스트림을 조회합니다
func (sm *StreamManager) GetStream(id string) (*Stream, error) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	stream, exists := sm.streams[id]
	if !exists {
		return nil, fmt.Errorf("stream %s not found", id)
	}

	return stream, nil
}

// ListStreams는 모든 스트림 목록을 반환합니다
func (sm *StreamManager) ListStreams() map[string]*Stream {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	// 복사본 반환 (외부에서 맵을 수정하지 못하도록)
	streams := make(map[string]*Stream, len(sm.streams))
	for id, stream := range sm.streams {
		streams[id] = stream
	}
	return streams
}

// Close는 모든 스트림을 닫습니다
func (sm *StreamManager) Close() {
	sm.ctxCancel()

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for id, stream := range sm.streams {
		stream.close()
		delete(sm.streams, id)
	}

	sm.logger.Info("Stream manager closed")
}

// GetID는 스트림 ID를 반환합니다
func (s *Stream) GetID() string {
	return s.id
}

// WritePacket은 발행자로부터 받은 패킷을 스트림에 기록합니다
func (s *Stream) WritePacket(pkt *StreamPacket) error {
	s.closeMutex.RLock()
	closed := s.closed
	s.closeMutex.RUnlock()

	if closed {
		return fmt.Errorf("stream %s is closed", s.id)
	}

	s.packetsReceived.Add(1)
	s.bytesReceived.Add(uint64(len(pkt.RTP.Payload)))

	select {
	case s.packetBuffer <- pkt:
		return nil
	default:
		// 버퍼가 가득 차면 버림 (발행자 블록 방지)
		s.droppedPackets.Add(1)
		return nil
	}
}

// Subscribe는 구독자를 등록하고 전용 워커를 시작합니다
func (s *Stream) Subscribe(sub StreamSubscriber) error {
	s.subMutex.Lock()
	defer s.subMutex.Unlock()

	id := sub.GetID()
	if _, exists := s.subscribers[id]; exists {
		return fmt.Errorf("subscriber %s already registered", id)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	worker := &subscriberWorker{
		sub:        sub,
		packetChan: make(chan *StreamPacket, 100),
		cancel:     cancel,
	}
	s.subscribers[id] = worker

	go s.runSubscriberWorker(ctx, worker)

	s.logger.Info("Subscriber registered",
		zap.String("subscriber_id", id),
		zap.Int("total_subscribers", len(s.subscribers)),
	)

	return nil
}

// Unsubscribe는 구독자를 제거합니다
func (s *Stream) Unsubscribe(id string) error {
	s.subMutex.Lock()
	defer s.subMutex.Unlock()

	worker, exists := s.subscribers[id]
	if !exists {
		return fmt.Errorf("subscriber %s not found", id)
	}

	worker.cancel()
	delete(s.subscribers, id)

	s.logger.Info("Subscriber removed",
		zap.String("subscriber_id", id),
		zap.Int("remaining_subscribers", len(s.subscribers)),
	)

	return nil
}

// GetSubscriberCount는 현재 구독자 수를 반환합니다
func (s *Stream) GetSubscriberCount() int {
	s.subMutex.RLock()
	defer s.subMutex.RUnlock()
	return len(s.subscribers)
}

// Stats는 스트림 통계 스냅샷을 반환합니다
func (s *Stream) Stats() StreamStats {
	return StreamStats{
		PacketsReceived: s.packetsReceived.Load(),
		PacketsSent:     s.packetsSent.Load(),
		BytesReceived:   s.bytesReceived.Load(),
		DroppedPackets:  s.droppedPackets.Load(),
	}
}

// distributePackets는 버퍼의 패킷을 구독자 워커들에게 배포합니다
func (s *Stream) distributePackets() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case pkt, ok := <-s.packetBuffer:
			if !ok {
				return
			}

			s.subMutex.RLock()
			for _, worker := range s.subscribers {
				select {
				case worker.packetChan <- pkt:
				default:
					// 구독자 채널이 가득 차면 버림
					s.droppedPackets.Add(1)
				}
			}
			s.subMutex.RUnlock()
		}
	}
}

// runSubscriberWorker는 구독자 하나의 패킷 전달을 담당합니다
func (s *Stream) runSubscriberWorker(ctx context.Context, worker *subscriberWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-worker.packetChan:
			if err := worker.sub.OnPacket(pkt); err != nil {
				s.logger.Debug("Failed to deliver packet to subscriber",
					zap.String("subscriber_id", worker.sub.GetID()),
					zap.Error(err),
				)
				continue
			}
			s.packetsSent.Add(1)
		}
	}
}

// close는 스트림을 닫힌 상태로 표시하고 구독자 워커를 정리합니다
func (s *Stream) close() {
	s.closeMutex.Lock()
	s.closed = true
	s.closeMutex.Unlock()

	s.subMutex.Lock()
	for id, worker := range s.subscribers {
		worker.cancel()
		delete(s.subscribers, id)
	}
	s.subMutex.Unlock()
}
