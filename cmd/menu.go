package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-logger/internal/config"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Interactive terminal menu",
	Long: `Show a terminal menu to register faces and start logging sessions.
Errors of an action (e.g. a missing webcam) are printed and the menu is shown again.`,
	RunE: runMenu,
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

func runMenu(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	for {
		fmt.Println()
		fmt.Println("1. Register new face")
		fmt.Println("2. Start logging")
		fmt.Println("3. Exit")

		choice, err := prompt(stdin, "Enter your choice: ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading choice: %w", err)
		}

		switch choice {
		case "1":
			if err := menuRegister(cfg); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "2":
			if err := menuWatch(cfg); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "3":
			fmt.Println("Exiting...")
			return nil
		default:
			fmt.Println("Invalid choice. Please try again.")
		}
	}
}

func menuRegister(cfg *config.Config) error {
	name, err := prompt(stdin, "Enter the name of the person: ")
	if err != nil {
		return err
	}

	reg, err := prepareRegistration(cfg, name, false)
	if err != nil || reg == nil {
		return err
	}

	// Ctrl+C ends the action, not the menu.
	ctx, stop := signalContext()
	defer stop()
	return registerFromCamera(ctx, cfg, newEncoder(cfg), reg)
}

func menuWatch(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()
	return watch(ctx, cfg, false)
}
