package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load читает YAML-файл задачи. Отсутствующие ключи берутся по умолчанию,
// неизвестные ключи считаются ошибкой.
func Load(path string) (JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobConfig{}, errors.Wrapf(err, "read job file %s", path)
	}
	return Parse(data)
}

// Parse декодирует YAML-документ поверх Default().
func Parse(data []byte) (JobConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return JobConfig{}, errors.Wrap(err, "decode job file")
	}
	return cfg, nil
}

// Save сохраняет cfg в YAML, создавая недостающие папки.
func Save(cfg JobConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, data, 0o644))
}

// Values раскладывает cfg в map с ключами как в файле задачи.
func (c JobConfig) Values() map[string]interface{} {
	return map[string]interface{}{
		"video_path":                   c.VideoPath,
		"scale_down":                   c.ScaleDown,
		"font_size":                    c.FontSize,
		"height_sample_scale":          c.HeightSampleScale,
		"invert":                       c.Invert,
		"max_fps":                      c.MaxFPS,
		"output_video_path":            c.OutputVideoPath,
		"overwrite":                    c.Overwrite,
		"use_max_fps_for_output_video": c.UseMaxFPSForOutputVideo,
		"rotate":                       c.Rotate,
		"still_fps":                    c.StillFPS,
		"document_dpi":                 c.DocumentDPI,
		"video_encoder":                c.VideoEncoder,
		"quality":                      c.Quality,
		"keep_partial_output":          c.KeepPartialOutput,
		"queue_depth":                  c.QueueDepth,
		"ffmpeg_path":                  c.FFmpegPath,
	}
}
