package config

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/ivlev/media2ascii/internal/domain"
)

const (
	DefaultScaleDown         = 1.0
	DefaultFontSize          = 12.0
	DefaultHeightSampleScale = 2.046 // отношение высоты к ширине моноширинной ячейки
	DefaultMaxFPS            = 60
	DefaultStillFPS          = 1.0
	DefaultDocumentDPI       = 96
	DefaultFFmpegPath        = "ffmpeg"
	EncoderAuto              = "auto"
)

// StillExtensions - входные файлы, которые декодируются как картинки, а не как поток.
var StillExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// PictureExtensions - выходные форматы, в которые пишется одна ASCII-картинка
// вместо видео.
var PictureExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff"}

// JobConfig описывает одну задачу конвертации. Движок копирует его при создании
// задачи и больше не изменяет.
type JobConfig struct {
	VideoPath               string  `yaml:"video_path" mapstructure:"video_path"`
	ScaleDown               float64 `yaml:"scale_down" mapstructure:"scale_down"`
	FontSize                float64 `yaml:"font_size" mapstructure:"font_size"`
	HeightSampleScale       float64 `yaml:"height_sample_scale" mapstructure:"height_sample_scale"`
	Invert                  bool    `yaml:"invert" mapstructure:"invert"`
	MaxFPS                  int     `yaml:"max_fps" mapstructure:"max_fps"`
	OutputVideoPath         string  `yaml:"output_video_path,omitempty" mapstructure:"output_video_path"`
	Overwrite               bool    `yaml:"overwrite" mapstructure:"overwrite"`
	UseMaxFPSForOutputVideo bool    `yaml:"use_max_fps_for_output_video" mapstructure:"use_max_fps_for_output_video"`
	Rotate                  int     `yaml:"rotate" mapstructure:"rotate"`

	StillFPS          float64 `yaml:"still_fps,omitempty" mapstructure:"still_fps"`
	DocumentDPI       int     `yaml:"document_dpi,omitempty" mapstructure:"document_dpi"`
	VideoEncoder      string  `yaml:"video_encoder,omitempty" mapstructure:"video_encoder"`
	Quality           int     `yaml:"quality,omitempty" mapstructure:"quality"`
	KeepPartialOutput bool    `yaml:"keep_partial_output,omitempty" mapstructure:"keep_partial_output"`
	QueueDepth        int     `yaml:"queue_depth,omitempty" mapstructure:"queue_depth"`
	FFmpegPath        string  `yaml:"ffmpeg_path,omitempty" mapstructure:"ffmpeg_path"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() JobConfig {
	return JobConfig{
		ScaleDown:         DefaultScaleDown,
		FontSize:          DefaultFontSize,
		HeightSampleScale: DefaultHeightSampleScale,
		MaxFPS:            DefaultMaxFPS,
		StillFPS:          DefaultStillFPS,
		DocumentDPI:       DefaultDocumentDPI,
		VideoEncoder:      EncoderAuto,
		FFmpegPath:        DefaultFFmpegPath,
	}
}

// WithDefaults заполняет необязательные поля движка, оставленные нулевыми.
// Параметры конвертации не трогаем: нулевой масштаб или размер шрифта -
// это ошибка, а не просьба подставить значение по умолчанию.
func (c JobConfig) WithDefaults() JobConfig {
	if c.StillFPS == 0 {
		c.StillFPS = DefaultStillFPS
	}
	if c.DocumentDPI == 0 {
		c.DocumentDPI = DefaultDocumentDPI
	}
	if strings.TrimSpace(c.VideoEncoder) == "" {
		c.VideoEncoder = EncoderAuto
	}
	if strings.TrimSpace(c.FFmpegPath) == "" {
		c.FFmpegPath = DefaultFFmpegPath
	}
	return c
}

// HasOutput сообщает, запрошен ли выходной файл.
func (c JobConfig) HasOutput() bool {
	return strings.TrimSpace(c.OutputVideoPath) != ""
}

// WantsPicture сообщает, что результатом будет одна картинка.
func (c JobConfig) WantsPicture() bool {
	return c.HasOutput() && hasExtension(c.OutputVideoPath, PictureExtensions)
}

// Validate проверяет ограничения всех полей, не обращаясь к файловой системе.
// Первое же нарушение отклоняет конфигурацию целиком.
func (c JobConfig) Validate() error {
	if strings.TrimSpace(c.VideoPath) == "" {
		return invalid("video_path is required")
	}
	if !finite(c.ScaleDown) || c.ScaleDown < 1.0 {
		return invalid("scale_down must be >= 1.0, got %v", c.ScaleDown)
	}
	if !finite(c.FontSize) || c.FontSize <= 0 {
		return invalid("font_size must be positive, got %v", c.FontSize)
	}
	if !finite(c.HeightSampleScale) || c.HeightSampleScale <= 0 {
		return invalid("height_sample_scale must be positive, got %v", c.HeightSampleScale)
	}
	if c.MaxFPS <= 0 {
		return invalid("max_fps must be positive, got %d", c.MaxFPS)
	}
	switch c.Rotate {
	case 0, 90, 180, 270:
	default:
		return invalid("rotate must be one of 0, 90, 180, 270, got %d", c.Rotate)
	}
	if c.UseMaxFPSForOutputVideo && !c.HasOutput() {
		return invalid("use_max_fps_for_output_video requires output_video_path")
	}
	if c.HasOutput() && samePath(c.OutputVideoPath, c.VideoPath) {
		return invalid("output_video_path must differ from video_path")
	}
	if c.WantsPicture() && !hasExtension(c.VideoPath, StillExtensions) {
		return invalid("picture output %s needs a single image input, got %s", c.OutputVideoPath, c.VideoPath)
	}
	if c.StillFPS < 0 || !finite(c.StillFPS) {
		return invalid("still_fps must be positive, got %v", c.StillFPS)
	}
	if c.DocumentDPI < 0 {
		return invalid("document_dpi must be positive, got %d", c.DocumentDPI)
	}
	if c.Quality < 0 {
		return invalid("quality must not be negative, got %d", c.Quality)
	}
	if c.QueueDepth < 0 {
		return invalid("queue_depth must not be negative, got %d", c.QueueDepth)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return domain.NewError(domain.KindInvalidConfig, format, args...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
