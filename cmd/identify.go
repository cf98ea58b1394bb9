package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image-path>",
	Short: "Find the enrolled employees closest to a face image",
	Long: `Extract a face embedding from the image and rank enrolled employees by
distance. This is a search, not a decision: candidates beyond the
verification threshold are listed too.

Example:
  facegate identify ./unknown.jpg --k 3`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	identifyCmd.Flags().Int("k", 5, "Number of candidates to return")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	k := mustGetInt(cmd, "k")

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("cannot read image %s: %w", imagePath, err)
	}

	app, err := newCLIApp(indexLoad)
	if err != nil {
		return err
	}
	defer app.Close()

	candidates, err := app.svc.Identify(context.Background(), image, k)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Println("No candidates found.")
		return nil
	}

	fmt.Printf("Top %d candidate(s):\n", len(candidates))
	for i, c := range candidates {
		name := c.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("  %d. %-20s %-24s distance %.4f  confidence %.2f\n",
			i+1, c.EmployeeID, name, c.Distance, c.Confidence)
	}
	return nil
}
