package pipeline

import "fmt"

// Codec은 마운트 포인트가 제공하는 코덱 계열입니다
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecVP8  Codec = "vp8"
)

// 외부 스트리밍 엔진의 합성 소스가 이해하는 테스트 패턴 이름들
const (
	PatternSMPTE    = "smpte"
	PatternSMPTE100 = "smpte100"
	PatternWhite    = "white"
	PatternBlack    = "black"
	PatternRed      = "red"
	PatternGreen    = "green"
	PatternBlue     = "blue"
)

// 코덱별 파이프라인 템플릿
// %s 자리에 테스트 패턴 이름이 치환됩니다
const (
	h264PipelineTemplate = "( videotestsrc pattern=%s ! " +
		"timeoverlay ! " +
		"x264enc ! video/x-h264, profile=baseline ! " +
		"rtph264pay name=pay0 pt=96 config-interval=-1 " +
		"audiotestsrc ! alawenc ! rtppcmapay name=pay1 pt=8 )"

	vp8PipelineTemplate = "( videotestsrc pattern=%s ! " +
		"timeoverlay ! " +
		"vp8enc ! rtpvp8pay name=pay0 pt=96 " +
		"audiotestsrc ! opusenc ! rtpopuspay name=pay1 pt=97 )"
)

// MountSpec은 논리 스트림 이름과 테스트 패턴의 매핑입니다
type MountSpec struct {
	Name    string
	Pattern string
}

// DefaultMounts는 기본 마운트 포인트 테이블을 반환합니다
func DefaultMounts() []MountSpec {
	return []MountSpec{
		{Name: "test", Pattern: PatternSMPTE},
	}
}

// ColorMounts는 컬러 패턴 전체 카탈로그를 반환합니다
// 기본 테이블에는 포함되지 않지만 설정 확장 시 사용할 수 있습니다
func ColorMounts() []MountSpec {
	return []MountSpec{
		{Name: "bars", Pattern: PatternSMPTE100},
		{Name: "white", Pattern: PatternWhite},
		{Name: "black", Pattern: PatternBlack},
		{Name: "red", Pattern: PatternRed},
		{Name: "green", Pattern: PatternGreen},
		{Name: "blue", Pattern: PatternBlue},
	}
}

// Codecs는 마운트 포인트별로 등록되는 코덱들을 고정된 순서로 반환합니다
func Codecs() []Codec {
	return []Codec{CodecH264, CodecVP8}
}

// PathSuffix는 코덱별 URL 경로 접미사를 반환합니다
// H.264가 기본 변형이므로 접미사가 없습니다
func (c Codec) PathSuffix() string {
	if c == CodecVP8 {
		return "-vp8"
	}
	return ""
}

// Catalog는 코덱별 파이프라인 템플릿을 보관합니다
type Catalog struct {
	templates map[Codec]string
}

// NewCatalog는 새로운 파이프라인 카탈로그를 생성합니다
func NewCatalog() *Catalog {
	return &Catalog{
		templates: map[Codec]string{
			CodecH264: h264PipelineTemplate,
			CodecVP8:  vp8PipelineTemplate,
		},
	}
}

// Render는 (코덱, 패턴) 조합의 파이프라인 기술 문자열을 생성합니다
// 패턴 이름의 유효성은 외부 엔진이 판단하므로 여기서는 검증하지 않습니다
func (c *Catalog) Render(codec Codec, pattern string) (string, error) {
	template, exists := c.templates[codec]
	if !exists {
		return "", fmt.Errorf("unknown codec: %s", codec)
	}

	return fmt.Sprintf(template, pattern), nil
}
