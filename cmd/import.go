package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <folder-path> [folder-path...]",
	Short: "Bulk-enroll faces from image folders",
	Long: `Enroll every image in the given folders. The employee ID is the file
name without its extension, so photos/emp-0042.jpg enrolls emp-0042.
Files whose stem repeats replace the earlier enrollment, same as
re-enrolling.

By default, only files in the specified folders are imported
(non-recursive). Use -r to search subdirectories too.
Supported formats: jpg, jpeg, png, gif, bmp

Example:
  facegate import /path/to/photos
  facegate import -r --workers 8 /path/to/photos /path/to/more`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolP("recursive", "r", false, "Search for images recursively in subdirectories")
	importCmd.Flags().Int("workers", 4, "Number of concurrent enrollments")
}

// isImageFile checks if a file has an extension the decode pipeline accepts
func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	supported := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".bmp":  true,
	}
	return supported[ext]
}

// collectImages gathers image paths from the given folders.
func collectImages(folderPaths []string, recursive bool) ([]string, error) {
	var filePaths []string
	for _, folderPath := range folderPaths {
		info, err := os.Stat(folderPath)
		if err != nil {
			return nil, fmt.Errorf("cannot access folder %s: %w", folderPath, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", folderPath)
		}

		if recursive {
			err := filepath.WalkDir(folderPath, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					filePaths = append(filePaths, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", folderPath, err)
			}
		} else {
			entries, err := os.ReadDir(folderPath)
			if err != nil {
				return nil, fmt.Errorf("cannot read folder %s: %w", folderPath, err)
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				if isImageFile(entry.Name()) {
					filePaths = append(filePaths, filepath.Join(folderPath, entry.Name()))
				}
			}
		}
	}
	return filePaths, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	recursive := mustGetBool(cmd, "recursive")
	workers := mustGetInt(cmd, "workers")
	if workers < 1 {
		workers = 1
	}

	filePaths, err := collectImages(args, recursive)
	if err != nil {
		return err
	}

	if len(filePaths) == 0 {
		fmt.Println("No image files found in the specified folders.")
		return nil
	}

	fmt.Printf("Found %d image(s) to enroll from %d folder(s)\n\n", len(filePaths), len(args))

	app, err := newCLIApp(indexSync)
	if err != nil {
		return err
	}
	defer app.Close()

	bar := progressbar.NewOptions(len(filePaths),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var (
		enrolled     int
		enrollErrors []string
		mu           sync.Mutex
		wg           sync.WaitGroup
		sem          = make(chan struct{}, workers)
	)

	ctx := context.Background()
	for _, filePath := range filePaths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fileName := filepath.Base(path)
			employeeID := strings.TrimSuffix(fileName, filepath.Ext(fileName))

			image, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				enrollErrors = append(enrollErrors, fmt.Sprintf("%s: %v", fileName, err))
				mu.Unlock()
				bar.Add(1)
				return
			}

			if _, err := app.svc.Enroll(ctx, employeeID, "", image); err != nil {
				mu.Lock()
				enrollErrors = append(enrollErrors, fmt.Sprintf("%s: %v", fileName, err))
				mu.Unlock()
				bar.Add(1)
				return
			}

			mu.Lock()
			enrolled++
			mu.Unlock()
			bar.Add(1)
		}(filePath)
	}
	wg.Wait()
	fmt.Println()

	app.saveIndex()

	for _, errMsg := range enrollErrors {
		fmt.Printf("Failed: %s\n", errMsg)
	}

	if enrolled == 0 {
		return fmt.Errorf("no faces were enrolled successfully")
	}

	fmt.Printf("\nDone! Enrolled %d of %d face(s)\n", enrolled, len(filePaths))
	return nil
}
