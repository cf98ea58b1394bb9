package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Long: `List enrolled identities with their enrollment metadata. Embedding
vectors are never printed.`,
	RunE: runIdentities,
}

var identitiesRmCmd = &cobra.Command{
	Use:   "rm <employee-id>",
	Short: "Remove an enrolled identity",
	Long: `Delete an employee's stored reference embedding and the archived
enrollment image, if any.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentitiesRm,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesRmCmd)

	identitiesCmd.Flags().StringP("query", "q", "", "Filter by employee ID or name substring")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	query := mustGetString(cmd, "query")

	app, err := newCLIApp(indexSkip)
	if err != nil {
		return err
	}
	defer app.Close()

	identities, err := app.svc.Identities(context.Background(), query)
	if err != nil {
		return err
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}

	fmt.Printf("%-20s %-24s %-12s %-8s %-10s %s\n",
		"EMPLOYEE", "NAME", "MODEL", "QUALITY", "ENROLLED", "ENROLLMENT")
	for _, id := range identities {
		name := id.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%-20s %-24s %-12s %-8.2f %-10s %s\n",
			id.EmployeeID, name, id.Model, id.Quality,
			id.EnrolledAt.Format("2006-01-02"), id.EnrollmentID)
	}
	fmt.Printf("\n%d identit(ies) enrolled\n", len(identities))
	return nil
}

func runIdentitiesRm(cmd *cobra.Command, args []string) error {
	employeeID := args[0]

	app, err := newCLIApp(indexSync)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.svc.Remove(context.Background(), employeeID); err != nil {
		return err
	}
	app.saveIndex()

	fmt.Printf("Removed %s\n", employeeID)
	return nil
}
