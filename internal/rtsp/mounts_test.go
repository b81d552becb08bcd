package rtsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/rtsp-test-server/internal/core"
	"github.com/yourusername/rtsp-test-server/internal/engine"
	"github.com/yourusername/rtsp-test-server/internal/pipeline"
	"go.uber.org/zap"
)

func newTestPathManager(t *testing.T) *PathManager {
	t.Helper()

	sm := core.NewStreamManager(zap.NewNop(), 0)
	t.Cleanup(sm.Close)

	eng := engine.New(engine.Config{Command: "true"}, zap.NewNop())
	t.Cleanup(eng.StopAll)

	return NewPathManager(sm, eng, 9554, 10*time.Second, zap.NewNop())
}

func TestRegisterAll_DefaultMounts(t *testing.T) {
	pm := newTestPathManager(t)

	err := RegisterAll(pm, pipeline.DefaultMounts(), pipeline.NewCatalog())
	require.NoError(t, err)

	// 마운트마다 코덱별 경로 두 개가 생깁니다
	assert.Equal(t, []string{"/test", "/test-vp8"}, pm.MountPaths())

	h264Path, err := pm.GetPath("/test")
	require.NoError(t, err)
	assert.Contains(t, h264Path.Factory().Launch, "x264enc")
	assert.Contains(t, h264Path.Factory().Launch, "pattern=smpte")
	assert.True(t, h264Path.Factory().Shared)
	assert.True(t, h264Path.Factory().PlayOnly)

	vp8Path, err := pm.GetPath("/test-vp8")
	require.NoError(t, err)
	assert.Contains(t, vp8Path.Factory().Launch, "vp8enc")
	assert.True(t, vp8Path.Factory().Shared)
	assert.True(t, vp8Path.Factory().PlayOnly)
}

func TestRegisterAll_MultipleMounts(t *testing.T) {
	pm := newTestPathManager(t)

	mounts := []pipeline.MountSpec{
		{Name: "test", Pattern: pipeline.PatternSMPTE},
		{Name: "red", Pattern: pipeline.PatternRed},
	}

	require.NoError(t, RegisterAll(pm, mounts, pipeline.NewCatalog()))

	assert.Equal(t, []string{"/test", "/test-vp8", "/red", "/red-vp8"}, pm.MountPaths())

	redPath, err := pm.GetPath("red")
	require.NoError(t, err)
	assert.Contains(t, redPath.Factory().Launch, "pattern=red")
}

func TestRegisterAll_DuplicateMountFails(t *testing.T) {
	pm := newTestPathManager(t)

	mounts := []pipeline.MountSpec{
		{Name: "test", Pattern: pipeline.PatternSMPTE},
		{Name: "test", Pattern: pipeline.PatternWhite},
	}

	err := RegisterAll(pm, mounts, pipeline.NewCatalog())
	assert.Error(t, err)
}

func TestPathManager_AddMountValidation(t *testing.T) {
	pm := newTestPathManager(t)
	factory := &MediaFactory{Launch: "x", Shared: true, PlayOnly: true}

	assert.Error(t, pm.AddMount("", factory))
	assert.Error(t, pm.AddMount("/", factory))
	assert.Error(t, pm.AddMount("/a/b", factory))
	assert.NoError(t, pm.AddMount("/ok", factory))
}

func TestPathManager_GetPath(t *testing.T) {
	pm := newTestPathManager(t)
	factory := &MediaFactory{Launch: "x", Shared: true, PlayOnly: true}
	require.NoError(t, pm.AddMount("/test", factory))

	// 선행 슬래시 유무와 무관하게 같은 경로를 찾습니다
	withSlash, err := pm.GetPath("/test")
	require.NoError(t, err)
	withoutSlash, err := pm.GetPath("test")
	require.NoError(t, err)
	assert.Same(t, withSlash, withoutSlash)

	_, err = pm.GetPath("/missing")
	assert.Error(t, err)
}

func TestPath_InitialState(t *testing.T) {
	pm := newTestPathManager(t)
	factory := &MediaFactory{Launch: "x", Shared: true, PlayOnly: true}
	require.NoError(t, pm.AddMount("/test", factory))

	path, err := pm.GetPath("/test")
	require.NoError(t, err)

	// 발행자가 붙기 전에는 준비 안 됨 상태
	assert.Nil(t, path.ServerStream())
	assert.Equal(t, 0, path.ViewerCount())

	select {
	case <-path.Ready():
		t.Fatal("path should not be ready without a publisher")
	default:
	}
}

func TestTrimPath(t *testing.T) {
	assert.Equal(t, "test", trimPath("/test"))
	assert.Equal(t, "test", trimPath("test"))
	assert.Equal(t, "", trimPath("/"))
}
