package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/media2ascii/internal/system"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Проверить ffmpeg, ffprobe и видеоэнкодер",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("ffmpeg")
			ff, err := system.LookBinary(name)
			if err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}
			probe, err := system.LookBinary("ffprobe")
			if err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "FFmpeg:    %s\n", ff)
			fmt.Fprintf(w, "FFprobe:   %s\n", probe)
			fmt.Fprintf(w, "Энкодер:   %s\n", system.DetectH264Encoder(ff))

			if snap, err := system.Snapshot(); err == nil {
				fmt.Fprintf(w, "Ядер CPU:  %d\n", snap.LogicalCPU)
			}
			fmt.Fprintf(w, "Очередь:   %d кадров при 1080p\n", system.QueueDepth(1920*1080*4))
			return nil
		},
	}
}
