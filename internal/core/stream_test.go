package core

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testSubscriber는 받은 패킷을 기록하는 테스트용 구독자
type testSubscriber struct {
	id      string
	mu      sync.Mutex
	packets []*StreamPacket
}

func newTestSubscriber(id string) *testSubscriber {
	return &testSubscriber{id: id}
}

func (s *testSubscriber) OnPacket(pkt *StreamPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, pkt)
	return nil
}

func (s *testSubscriber) GetID() string {
	return s.id
}

func (s *testSubscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func testPacket(seq uint16) *StreamPacket {
	return &StreamPacket{
		Track: 0,
		RTP: &rtp.Packet{
			Header:  rtp.Header{SequenceNumber: seq},
			Payload: []byte{0x01, 0x02, 0x03},
		},
	}
}

// waitFor는 조건이 참이 될 때까지 폴링합니다 (고루틴 전달 대기)
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStreamManager_CreateStream(t *testing.T) {
	sm := NewStreamManager(zap.NewNop(), 0)
	defer sm.Close()

	stream, err := sm.CreateStream("test")
	require.NoError(t, err)
	assert.Equal(t, "test", stream.GetID())

	// 같은 ID로 중복 생성은 에러
	_, err = sm.CreateStream("test")
	assert.Error(t, err)

	got, err := sm.GetStream("test")
	require.NoError(t, err)
	assert.Same(t, stream, got)

	_, err = sm.GetStream("missing")
	assert.Error(t, err)
}

func TestStream_PacketDelivery(t *testing.T) {
	sm := NewStreamManager(zap.NewNop(), 0)
	defer sm.Close()

	stream, err := sm.CreateStream("test")
	require.NoError(t, err)

	sub := newTestSubscriber("sub1")
	require.NoError(t, stream.Subscribe(sub))

	for i := 0; i < 10; i++ {
		require.NoError(t, stream.WritePacket(testPacket(uint16(i))))
	}

	waitFor(t, func() bool { return sub.count() == 10 })

	stats := stream.Stats()
	assert.Equal(t, uint64(10), stats.PacketsReceived)
	assert.Equal(t, uint64(30), stats.BytesReceived)
}

func TestStream_MultipleSubscribers(t *testing.T) {
	sm := NewStreamManager(zap.NewNop(), 0)
	defer sm.Close()

	stream, err := sm.CreateStream("test")
	require.NoError(t, err)

	subA := newTestSubscriber("a")
	subB := newTestSubscriber("b")
	require.NoError(t, stream.Subscribe(subA))
	require.NoError(t, stream.Subscribe(subB))

	assert.Equal(t, 2, stream.GetSubscriberCount())

	// 같은 패킷이 모든 구독자에게 전달됩니다
	require.NoError(t, stream.WritePacket(testPacket(1)))

	waitFor(t, func() bool { return subA.count() == 1 && subB.count() == 1 })
}

func TestStream_DuplicateSubscriber(t *testing.T) {
	sm := NewStreamManager(zap.NewNop(), 0)
	defer sm.Close()

	stream, err := sm.CreateStream("test")
	require.NoError(t, err)

	sub := newTestSubscriber("sub1")
	require.NoError(t, stream.Subscribe(sub))
	assert.Error(t, stream.Subscribe(sub))
}

func TestStream_Unsubscribe(t *testing.T) {
	sm := NewStreamManager(zap.NewNop(), 0)
	defer sm.Close()

	stream, err := sm.CreateStream("test")
	require.NoError(t, err)

	sub := newTestSubscriber("sub1")
	require.NoError(t, stream.Subscribe(sub))
	require.NoError(t, stream.Unsubscribe("sub1"))

	assert.Equal(t, 0, stream.GetSubscriberCount())
	assert.Error(t, stream.Unsubscribe("sub1"))
}

func TestStream_WriteAfterClose(t *testing.T) {
	sm := NewStreamManager(zap.NewNop(), 0)

	stream, err := sm.CreateStream("test")
	require.NoError(t, err)

	sm.Close()

	assert.Error(t, stream.WritePacket(testPacket(1)))
}
