package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ivlev/media2ascii/internal/config"
	"github.com/ivlev/media2ascii/internal/engine"
	"github.com/ivlev/media2ascii/internal/system"
)

// flagKeys сопоставляет флаги командной строки ключам файла задачи.
var flagKeys = map[string]string{
	"video-path":                   "video_path",
	"scale-down":                   "scale_down",
	"font-size":                    "font_size",
	"height-sample-scale":          "height_sample_scale",
	"invert":                       "invert",
	"max-fps":                      "max_fps",
	"output":                       "output_video_path",
	"overwrite":                    "overwrite",
	"use-max-fps-for-output-video": "use_max_fps_for_output_video",
	"rotate":                       "rotate",
	"still-fps":                    "still_fps",
	"dpi":                          "document_dpi",
	"encoder":                      "video_encoder",
	"quality":                      "quality",
	"keep-partial":                 "keep_partial_output",
	"queue-depth":                  "queue_depth",
	"ffmpeg":                       "ffmpeg_path",
}

type runFunc func(cmd *cobra.Command, v *viper.Viper, args []string) error

func newRootCmd() *cobra.Command {
	return buildRootCmd(viper.New(), runConvert)
}

func buildRootCmd(v *viper.Viper, run runFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "mediatoascii [media]",
		Short:         "Конвертация видео, картинок и PDF в ASCII-арт",
		Long:          "mediatoascii разбивает каждый кадр видео, картинки или PDF на сетку символов и показывает её в терминале или кодирует в новое видео.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, args)
		},
	}

	root.PersistentFlags().String("ffmpeg", config.DefaultFFmpegPath, "Путь к ffmpeg")
	root.PersistentFlags().String("log-level", "warning", "Уровень логов: debug, info, warning, error")

	bindConvertFlags(root.Flags())
	bindKeys(v, root, flagKeys)
	v.SetEnvPrefix("MEDIATOASCII")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(newDoctorCmd())
	return root
}

// bindKeys привязывает каждый флаг к ключу файла задачи. Отсутствующий флаг
// означает ошибку в таблице, поэтому паникуем ещё при сборке команды.
func bindKeys(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(flag)
		}
		if f == nil {
			panic(fmt.Sprintf("flag --%s for %s is not defined", flag, key))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

func bindConvertFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("video-path", "", "Входное видео, картинка, папка с картинками или PDF (можно передать аргументом)")
	fs.Float64("scale-down", d.ScaleDown, "Во сколько раз уменьшить разрешение сетки символов (>= 1)")
	fs.Float64("font-size", d.FontSize, "Размер символа в пикселях источника и размер шрифта на выходе")
	fs.Float64("height-sample-scale", d.HeightSampleScale, "Отношение высоты ячейки символа к ширине")
	fs.BoolP("invert", "i", false, "Инвертировать палитру для светлого фона")
	fs.Int("max-fps", d.MaxFPS, "Максимальный FPS просмотра")
	fs.StringP("output", "o", "", "Путь к ASCII-видео или картинке для входной картинки (.png, .jpg, .bmp, .tiff)")
	fs.Bool("overwrite", false, "Перезаписать существующий файл")
	fs.Bool("use-max-fps-for-output-video", false, "Применять --max-fps и к выходному файлу")
	fs.IntP("rotate", "r", 0, "Поворот входа по часовой стрелке: 0, 90, 180, 270")
	fs.Float64("still-fps", d.StillFPS, "FPS для картинок и страниц PDF")
	fs.Int("dpi", d.DocumentDPI, "DPI рендеринга страниц PDF")
	fs.String("encoder", d.VideoEncoder, "Видеоэнкодер ffmpeg или auto")
	fs.Int("quality", 0, "Качество (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с, JPEG: 1-100)")
	fs.Bool("keep-partial", false, "Сохранить уже закодированные кадры, если поток оборвался")
	fs.Int("queue-depth", 0, "Кадров в очереди между стадиями (0 - по свободной памяти)")

	fs.String("config", "", "YAML-файл задачи; флаги и переменные MEDIATOASCII_* важнее")
	fs.String("save-config", "", "Сохранить итоговый файл задачи по этому пути")
	fs.String("input-dir", "input", "Папка, где ищется самый свежий медиафайл, если вход не указан")
	fs.Bool("preview", false, "Показывать кадры в терминале даже при записи в файл")
	fs.Bool("no-preview", false, "Не показывать кадры в терминале")
	fs.String("text-out", "", "Сохранить последний показанный кадр текстом")
	fs.Bool("stats", false, "Вывести отчёт о производительности")
}

// resolveConfig накладывает на значения по умолчанию файл задачи,
// переменные MEDIATOASCII_* и флаги (в порядке возрастания приоритета).
func resolveConfig(cmd *cobra.Command, v *viper.Viper, args []string) (config.JobConfig, error) {
	base := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.JobConfig{}, err
		}
		base = loaded
	}
	for key, val := range base.Values() {
		v.SetDefault(key, val)
	}

	var cfg config.JobConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return config.JobConfig{}, err
	}

	if len(args) > 0 {
		cfg.VideoPath = args[0]
	}
	if cfg.VideoPath == "" {
		dir, _ := cmd.Flags().GetString("input-dir")
		latest, err := system.FindLatestMedia(dir)
		if err != nil {
			return config.JobConfig{}, fmt.Errorf("no input given and %v", err)
		}
		cfg.VideoPath = latest
		fmt.Fprintf(cmd.ErrOrStderr(), "[*] Выбран файл: %s\n", latest)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(level)
	return l, nil
}

func runConvert(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfg, err := resolveConfig(cmd, v, args)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	if path, _ := cmd.Flags().GetString("save-config"); path != "" {
		if err := config.Save(cfg, path); err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[*] Файл задачи сохранён: %s\n", path)
	}

	out := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
	out.preview = wantPreview(cmd, cfg)
	out.textOut, _ = cmd.Flags().GetString("text-out")

	job := engine.NewJob(cfg, engine.WithLogger(logger))
	out.header(job)

	done := make(chan error, 1)
	go func() { done <- job.Run(cmd.Context()) }()

	last := out.consume(cmd.Context(), job)
	runErr := <-done

	if last != nil && out.textOut != "" {
		if err := saveText(out.textOut, last); err != nil {
			logger.WithError(err).Warn("cannot save text frame")
		} else {
			out.info("Текстовый кадр сохранён: %s", out.textOut)
		}
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		fmt.Fprint(cmd.ErrOrStderr(), job.Report().String())
	}
	if runErr != nil {
		return exitError(runErr)
	}
	if cfg.HasOutput() {
		out.success("Успех! Результат: %s", cfg.OutputVideoPath)
	}
	return nil
}

type previewMode int

const (
	previewOff previewMode = iota
	previewPlain
	previewTerminal
)

// wantPreview включает просмотр, если файл не пишется или просмотр запрошен явно.
// В терминале кадры сменяют друг друга в реальном времени, иначе
// печатаются подряд.
func wantPreview(cmd *cobra.Command, cfg config.JobConfig) previewMode {
	if off, _ := cmd.Flags().GetBool("no-preview"); off {
		return previewOff
	}
	on, _ := cmd.Flags().GetBool("preview")
	if !on && cfg.HasOutput() {
		return previewOff
	}
	if isTerminal(os.Stdout) {
		return previewTerminal
	}
	return previewPlain
}
