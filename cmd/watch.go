package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/attendance"
	"github.com/kozaktomas/face-logger/internal/camera"
	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recognize faces from the webcam and log attendance",
	Long: `Start a logging session on the webcam feed.

Every detected face is compared with the registered samples. A recognized
person is logged once per cooldown window (LOG_COOLDOWN, default 1h); faces
without a match are logged as "Unknown" on every processed frame.

Press 'q' in the preview window or Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("headless", false, "Do not open a preview window")
	watchCmd.Flags().Float64("threshold", 0, "Match threshold override (0 = MATCH_THRESHOLD)")
	watchCmd.Flags().Duration("cooldown", 0, "Cooldown override, e.g. 30m (0 = LOG_COOLDOWN)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		cfg.Matching.Threshold = t
	}
	if d := mustGetDuration(cmd, "cooldown"); d > 0 {
		cfg.Log.Cooldown = d
	}

	ctx, stop := signalContext()
	defer stop()

	return watch(ctx, cfg, mustGetBool(cmd, "headless"))
}

// watch runs one logging session until q, Ctrl+C or a device error.
func watch(ctx context.Context, cfg *config.Config, headless bool) error {
	store, err := identity.Load(cfg.Faces.Dir, cfg.Faces.Dim)
	if err != nil {
		return err
	}
	if store.Len() == 0 {
		fmt.Println("Warning: no registered faces, every face will be logged as Unknown.")
	}

	logger := attendance.NewLogger(cfg.Log.Path)
	if err := logger.Init(); err != nil {
		return err
	}

	pool, mirrors, err := openMirror(ctx, cfg)
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
		fmt.Println("Continuing without the database mirror.")
	}
	if pool != nil {
		defer pool.Close()
		fmt.Println("Mirroring log entries to PostgreSQL.")
	}

	logging := session.NewLogging(store, logger, session.Options{
		Threshold: cfg.Matching.Threshold,
		Cooldown:  cfg.Log.Cooldown,
	}, mirrors...)
	logging.Start()
	defer logging.Stop()

	cam, err := camera.Open(cfg.Camera.Device, cfg.Camera.FPS)
	if err != nil {
		return err
	}
	defer cam.Close()

	var win *camera.Window
	if !headless {
		win = camera.NewWindow("Face Logger")
		defer win.Close()
	}

	fmt.Printf("Logging to %s (%d people, threshold %.2f, cooldown %s).\n",
		logger.Path(), len(store.Labels()), cfg.Matching.Threshold, cfg.Log.Cooldown)
	fmt.Println("Press 'q' in the window or Ctrl+C to stop.")

	det := newEncoder(cfg)
	lastWarning := ""

	err = camera.Loop(ctx, cam, win, cfg.Camera.FrameInterval, func(ctx context.Context, f *camera.Frame, _ int) error {
		data, err := f.JPEG()
		if err != nil {
			return err
		}

		res, err := logging.ProcessFrame(ctx, det, data, f.Time)
		if err != nil && ctx.Err() == nil {
			// Repeated failures (encoder down) are printed once.
			if msg := err.Error(); msg != lastWarning {
				fmt.Printf("Warning: %s\n", msg)
				lastWarning = msg
			}
		} else {
			lastWarning = ""
		}

		for _, rec := range res.Records {
			fmt.Printf("%s  %-10s  %s\n", rec.Time.Format(attendance.TimeLayout), rec.Status, rec.Name)
		}

		f.Annotate(res.Annotations)
		if n := len(res.Annotations); n > 0 {
			f.Status(res.Status, res.Annotations[n-1].Outcome)
		}
		return nil
	})

	fmt.Printf("Logging stopped. %d people recognized in this session.\n", logging.Recognized())
	return err
}
