package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <employee-id> <image-path>",
	Short: "Verify an image against an employee's enrolled face",
	Long: `Extract a face embedding from the image and compare it against the
employee's stored reference. Prints the decision with its distance and
confidence.

Example:
  facegate verify emp-0042 ./checkin.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Float64("threshold", 0, "Decision threshold override (defaults to the model table)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	employeeID := args[0]
	imagePath := args[1]

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("cannot read image %s: %w", imagePath, err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Match.Threshold = mustGetFloat64(cmd, "threshold")
	}

	app, err := newApp(cfg, logger.New(os.Stderr, "error"), indexSkip, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.svc.Verify(context.Background(), employeeID, image)
	if err != nil {
		return err
	}

	if result.Matched {
		fmt.Printf("MATCH for %s\n", employeeID)
	} else {
		fmt.Printf("NO MATCH for %s\n", employeeID)
	}
	fmt.Printf("  Distance:   %.4f (%s, threshold %.4f)\n", result.Distance, result.Metric, result.Threshold)
	fmt.Printf("  Confidence: %.2f\n", result.Confidence)
	return nil
}
