package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <employee-id> <image-path>",
	Short: "Enroll an employee's face from an image file",
	Long: `Extract a face embedding from the image and store it as the reference
for the employee. Enrolling an already enrolled employee replaces the
stored reference.

Example:
  facegate enroll emp-0042 ./photos/novak.jpg --name "Jan Novák"`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().String("name", "", "Display name stored with the enrollment")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	employeeID := args[0]
	imagePath := args[1]
	name := mustGetString(cmd, "name")

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("cannot read image %s: %w", imagePath, err)
	}

	app, err := newCLIApp(indexSync)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.svc.Enroll(context.Background(), employeeID, name, image)
	if err != nil {
		return err
	}
	app.saveIndex()

	fmt.Printf("Enrolled %s\n", result.EmployeeID)
	fmt.Printf("  Enrollment: %s\n", result.EnrollmentID)
	fmt.Printf("  Model:      %s (%d dimensions)\n", result.Model, result.Dim)
	fmt.Printf("  Quality:    %.2f\n", result.Quality)
	return nil
}
