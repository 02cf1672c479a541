package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/camera"
	"github.com/kozaktomas/face-logger/internal/config"
	"github.com/kozaktomas/face-logger/internal/encoder"
	"github.com/kozaktomas/face-logger/internal/identity"
	"github.com/kozaktomas/face-logger/internal/session"
)

var registerCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register a person's face",
	Long: `Register a person by capturing face samples from the webcam.

In the preview window press 'c' (or space) to capture a sample of the largest
visible face and 'q' to finish. Every capture is saved immediately as
faces/<name>/face_<id>.npy.

With --image the samples are taken from photos instead of the webcam.

Examples:
  face-logger register "Jane Doe"
  face-logger register "Jane Doe" --image jane1.jpg --image jane2.png
  face-logger register "Jane Doe" --yes   # add samples to an existing person`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().StringSlice("image", nil, "Register from image files instead of the webcam (repeatable)")
	registerCmd.Flags().Bool("yes", false, "Do not ask before adding samples to an existing or similar name")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	} else if name, err = prompt(stdin, "Enter the name of the person: "); err != nil {
		return fmt.Errorf("reading name: %w", err)
	}

	reg, err := prepareRegistration(cfg, name, mustGetBool(cmd, "yes"))
	if err != nil || reg == nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	det := newEncoder(cfg)
	if images := mustGetStringSlice(cmd, "image"); len(images) > 0 {
		return registerFromImages(ctx, cfg, det, reg, images)
	}
	return registerFromCamera(ctx, cfg, det, reg)
}

// prepareRegistration validates the name, loads the faces directory and asks
// before touching an existing or similarly named person. An invalid name is
// rejected before the faces directory is created. A nil registration means
// the user cancelled.
func prepareRegistration(cfg *config.Config, name string, yes bool) (*session.Registration, error) {
	if _, err := identity.NormalizeLabel(name); err != nil {
		return nil, err
	}
	store, err := identity.Load(cfg.Faces.Dir, cfg.Faces.Dim)
	if err != nil {
		return nil, err
	}
	reg, err := session.NewRegistration(store, name)
	if err != nil {
		return nil, err
	}

	question := ""
	if reg.Existing() {
		fmt.Printf("%s is already registered with %d sample(s).\n", reg.Label(), store.CountByLabel()[reg.Label()])
		question = "Add more samples?"
	} else if similar, ok := store.FindSimilarLabel(reg.Label()); ok {
		fmt.Printf("Warning: %q looks like the registered person %q.\n", reg.Label(), similar)
		question = "Register as a different person anyway?"
	}

	if question != "" && !yes {
		ok, err := confirm(stdin, question)
		if err != nil {
			return nil, fmt.Errorf("reading answer: %w", err)
		}
		if !ok {
			fmt.Println("Registration cancelled.")
			return nil, nil
		}
	}
	return reg, nil
}

func registerFromCamera(ctx context.Context, cfg *config.Config, det session.Detector, reg *session.Registration) error {
	cam, err := camera.Open(cfg.Camera.Device, cfg.Camera.FPS)
	if err != nil {
		return err
	}
	defer cam.Close()

	win := camera.NewWindow("Register " + reg.Label())
	defer win.Close()

	fmt.Printf("Registering %s. Press 'c' to capture a sample, 'q' to finish.\n", reg.Label())

	message := "Press c to capture, q to finish"
	outcome := session.OutcomeCooldown
	err = camera.Loop(ctx, cam, win, cfg.Camera.FrameInterval, func(ctx context.Context, f *camera.Frame, key int) error {
		if key == 'c' || key == 'C' || key == ' ' {
			data, err := f.JPEG()
			if err != nil {
				return err
			}
			path, err := reg.CaptureFrame(ctx, det, data)
			switch {
			case errors.Is(err, session.ErrNoFaceDetected):
				fmt.Println("No face detected, try again.")
				message, outcome = "No face detected", session.OutcomeUnknown
			case err != nil:
				fmt.Printf("Warning: capture failed: %v\n", err)
				message, outcome = "Capture failed", session.OutcomeUnknown
			default:
				fmt.Printf("Saved %s\n", path)
				message, outcome = fmt.Sprintf("Saved sample %d for %s", reg.Captured(), reg.Label()), session.OutcomeLogged
			}
		}
		f.Status(message, outcome)
		return nil
	})
	if err != nil {
		return err
	}

	return finishRegistration(reg)
}

func registerFromImages(ctx context.Context, cfg *config.Config, det session.Detector, reg *session.Registration, images []string) error {
	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Registering "+reg.Label()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var skipped []string
	for _, path := range images {
		if ctx.Err() != nil {
			break
		}
		// Boxes only pick the largest face, so the resize scale is irrelevant.
		data, _, err := encoder.LoadImageFile(path, cfg.Embedding.MaxSize)
		if err == nil {
			_, err = reg.CaptureFrame(ctx, det, data)
		}
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	for _, s := range skipped {
		fmt.Printf("Skipped %s\n", s)
	}
	return finishRegistration(reg)
}

func finishRegistration(reg *session.Registration) error {
	store, err := reg.Finish()
	if err != nil {
		return err
	}
	if reg.Captured() == 0 {
		fmt.Printf("No samples captured for %s.\n", reg.Label())
		return nil
	}
	fmt.Printf("Registered %d sample(s) for %s. %d people known.\n", reg.Captured(), reg.Label(), len(store.Labels()))
	return nil
}
