package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaExtensions - типы файлов, среди которых CLI ищет самый свежий вход.
var MediaExtensions = []string{
	".mp4", ".mov", ".mkv", ".webm", ".avi", ".gif",
	".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp", ".pdf",
}

// FindLatestMedia находит самый свежий медиафайл в dir.
func FindLatestMedia(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.WithStack(err)
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExtension(f.Name(), MediaExtensions) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", errors.Errorf("no media files found in %s", dir)
	}
	return latestFile, nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// LookBinary ищет вспомогательную программу, например ffmpeg или ffprobe.
func LookBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "%s not found in PATH", name)
	}
	return path, nil
}

// hardwareEncoders проверяются по порядку, иначе используется libx264.
var hardwareEncoders = []string{"h264_videotoolbox", "h264_nvenc"}

// DetectH264Encoder выбирает аппаратный H.264 энкодер, если ffmpeg его знает.
func DetectH264Encoder(ffmpegPath string) string {
	out, err := exec.Command(ffmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(listing string) string {
	for _, enc := range hardwareEncoders {
		if strings.Contains(listing, enc) {
			return enc
		}
	}
	return "libx264"
}

// DefaultQuality - качество по умолчанию для каждого энкодера.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// QualityArgs переводит качество в параметры ffmpeg для конкретного энкодера.
func QualityArgs(encoder string, quality int) ffmpeg.KwArgs {
	if quality <= 0 {
		quality = DefaultQuality(encoder)
	}
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox часто не поддерживает -q:v. Используем битрейт.
		return ffmpeg.KwArgs{"b:v": fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return ffmpeg.KwArgs{"cq": quality}
	case "libx264", "libx265":
		return ffmpeg.KwArgs{"crf": quality, "preset": "medium"}
	default:
		return ffmpeg.KwArgs{}
	}
}

// Tail хранит последние Limit байт. Собирает stderr ffmpeg для сообщений
// об ошибках, не держа весь лог.
type Tail struct {
	Limit int
	mu    sync.Mutex
	buf   []byte
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit := t.Limit
	if limit <= 0 {
		limit = 4096
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String возвращает сохранённый вывод без пробелов по краям.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
