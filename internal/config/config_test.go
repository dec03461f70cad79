package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/pkg/errors"
)

func validConfig() JobConfig {
	cfg := Default()
	cfg.VideoPath = "input.mp4"
	return cfg
}

func TestDefaultIsValidOnceSourceIsSet(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := Default().Validate(); domain.KindOf(err) != domain.KindInvalidConfig {
		t.Fatalf("empty video_path: err = %v, want InvalidConfig", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*JobConfig)
	}{
		{"blank path", func(c *JobConfig) { c.VideoPath = "   " }},
		{"scale below one", func(c *JobConfig) { c.ScaleDown = 0.5 }},
		{"scale NaN", func(c *JobConfig) { c.ScaleDown = math.NaN() }},
		{"zero font", func(c *JobConfig) { c.FontSize = 0 }},
		{"negative font", func(c *JobConfig) { c.FontSize = -3 }},
		{"zero height scale", func(c *JobConfig) { c.HeightSampleScale = 0 }},
		{"infinite height scale", func(c *JobConfig) { c.HeightSampleScale = math.Inf(1) }},
		{"zero max fps", func(c *JobConfig) { c.MaxFPS = 0 }},
		{"rotate 45", func(c *JobConfig) { c.Rotate = 45 }},
		{"rotate -90", func(c *JobConfig) { c.Rotate = -90 }},
		{"output fps without output", func(c *JobConfig) { c.UseMaxFPSForOutputVideo = true }},
		{"output equals input", func(c *JobConfig) { c.OutputVideoPath = c.VideoPath }},
		{"negative quality", func(c *JobConfig) { c.Quality = -1 }},
		{"negative queue", func(c *JobConfig) { c.QueueDepth = -2 }},
		{"picture from video", func(c *JobConfig) { c.OutputVideoPath = "out.png" }},
		{"picture from pdf", func(c *JobConfig) { c.VideoPath = "deck.pdf"; c.OutputVideoPath = "out.jpg" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if domain.KindOf(err) != domain.KindInvalidConfig {
				t.Fatalf("err = %v, want InvalidConfig", err)
			}
		})
	}
}

func TestWantsPicture(t *testing.T) {
	tests := []struct {
		in, out string
		want    bool
	}{
		{"photo.jpg", "ascii.png", true},
		{"photo.webp", "ascii.TIFF", true},
		{"clip.mov", "ascii.mp4", false},
		{"photo.png", "ascii.mkv", false},
		{"photo.png", "", false},
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.VideoPath, cfg.OutputVideoPath = tt.in, tt.out
		if got := cfg.WantsPicture(); got != tt.want {
			t.Errorf("WantsPicture(%q -> %q) = %v, want %v", tt.in, tt.out, got, tt.want)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%q -> %q) = %v", tt.in, tt.out, err)
		}
	}
}

func TestValidateAcceptsRotations(t *testing.T) {
	for _, r := range []int{0, 90, 180, 270} {
		cfg := validConfig()
		cfg.Rotate = r
		if err := cfg.Validate(); err != nil {
			t.Fatalf("rotate %d: %v", r, err)
		}
	}
}

func TestWithDefaultsKeepsConversionFields(t *testing.T) {
	cfg := JobConfig{VideoPath: "a.mp4", ScaleDown: 2, FontSize: 8}
	got := cfg.WithDefaults()
	if got.StillFPS != DefaultStillFPS || got.DocumentDPI != DefaultDocumentDPI {
		t.Fatalf("engine defaults not applied: %+v", got)
	}
	if got.VideoEncoder != EncoderAuto || got.FFmpegPath != DefaultFFmpegPath {
		t.Fatalf("encoder defaults not applied: %+v", got)
	}
	if got.HeightSampleScale != 0 || got.MaxFPS != 0 {
		t.Fatalf("conversion fields must not be defaulted: %+v", got)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte("video_path: clip.mov\nmax_fps: 10\ninvert: true\n"))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.VideoPath != "clip.mov" || cfg.MaxFPS != 10 || !cfg.Invert {
		t.Fatalf("parsed fields wrong: %+v", cfg)
	}
	if cfg.FontSize != DefaultFontSize || cfg.HeightSampleScale != DefaultHeightSampleScale {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("video_path: a.mp4\nfont_sise: 3\n")); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestSaveLoadJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs", "job.yaml")
	want := validConfig()
	want.OutputVideoPath = "out.mp4"
	want.Rotate = 180

	if err := Save(want, path); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got != want {
		t.Fatalf("config = %+v, want %+v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) = %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Parse(nil) = %+v, want defaults", cfg)
	}
}

func TestValuesUsesJobFileKeys(t *testing.T) {
	cfg := Default()
	cfg.VideoPath = "in.mp4"
	v := cfg.Values()
	if v["video_path"] != "in.mp4" || v["max_fps"] != DefaultMaxFPS || v["invert"] != false {
		t.Fatalf("Values() = %v", v)
	}
	if _, ok := v["keep_partial_output"]; !ok {
		t.Fatal("omitempty key missing from Values()")
	}
}
