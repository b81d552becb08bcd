package rtsp

import (
	"fmt"
	"strings"

	"github.com/yourusername/rtsp-test-server/internal/pipeline"
	"go.uber.org/zap"
)

// MediaFactory는 마운트 포인트의 미디어 파이프라인 템플릿입니다
// 등록 시 소유권이 마운트 테이블로 이전되며 등록자는 참조를 유지하지 않습니다
type MediaFactory struct {
	// Launch는 외부 엔진에 전달되는 파이프라인 기술 문자열
	Launch string
	// Shared가 true면 같은 경로의 동시 세션들이 파이프라인 하나를 공유합니다
	Shared bool
	// PlayOnly가 true면 외부 클라이언트의 publish를 거부합니다
	PlayOnly bool
}

// RegisterAll은 모든 (마운트, 코덱) 조합의 팩토리를 마운트 테이블에 등록합니다
//
// 마운트마다 코덱 순서대로 (H.264 먼저) 두 경로가 생깁니다:
// /<name> (H.264), /<name>-vp8 (VP8)
//
// 등록 실패는 fail-fast입니다: 실패한 경로를 로그로 남기고 즉시 반환하므로
// 일부만 등록된 채 서버가 뜨는 일은 없습니다
func RegisterAll(pm *PathManager, mounts []pipeline.MountSpec, catalog *pipeline.Catalog) error {
	for _, mount := range mounts {
		for _, codec := range pipeline.Codecs() {
			launch, err := catalog.Render(codec, mount.Pattern)
			if err != nil {
				return fmt.Errorf("failed to render pipeline for %s/%s: %w",
					mount.Name, codec, err)
			}

			path := "/" + mount.Name + codec.PathSuffix()

			factory := &MediaFactory{
				Launch:   launch,
				Shared:   true,
				PlayOnly: true,
			}

			if err := pm.AddMount(path, factory); err != nil {
				pm.logger.Error("Failed to register mount point",
					zap.String("path", path),
					zap.String("codec", string(codec)),
					zap.Error(err),
				)
				return fmt.Errorf("failed to register mount point %s: %w", path, err)
			}

			pm.logger.Info("Mount point registered",
				zap.String("path", path),
				zap.String("codec", string(codec)),
				zap.String("pattern", mount.Pattern),
			)
		}
	}

	return nil
}

// trimPath는 RTSP 경로의 선행 슬래시를 제거합니다
// 예: /test → test
func trimPath(pathName string) string {
	return strings.TrimPrefix(pathName, "/")
}
