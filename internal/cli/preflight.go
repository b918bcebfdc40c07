package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeltransfer/internal/preflight"
	"github.com/reelworks/reeltransfer/internal/progress"
)

func newPreflightCmd() *cobra.Command {
	f := &transferFlags{}

	cmd := &cobra.Command{
		Use:   "preflight SOURCE... DEST",
		Short: "Check a transfer without running it",
		Long: `Walk the sources and probe the destination: total size and file count,
free space, and files that already exist at the destination.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(cmd, args, f)
			if err != nil {
				return err
			}

			var report *preflight.Report
			err = withSpinner(progress.NewScanner(), "Scanning sources", func() error {
				var perr error
				report, perr = preflight.Run(req, preflight.Options{})
				return perr
			})
			if err != nil {
				return err
			}

			fmt.Printf("Source:       %s\n", req.SourceRoot())
			fmt.Printf("Destination:  %s\n", req.Dest)
			fmt.Printf("Files:        %d\n", report.TotalFiles)
			fmt.Printf("Total size:   %s\n", formatBytes(report.TotalBytes))
			fmt.Printf("Free space:   %s\n", formatBytes(report.DestinationFreeBytes))
			fmt.Printf("Fits:         %v\n", report.HasEnoughSpace)
			if report.SubdirFilesPresent && !req.IncludeSubdirs {
				fmt.Println("Note: subdirectories contain files this transfer would skip")
			}
			if len(report.Collisions) == 0 {
				fmt.Println("Duplicates:   none")
				return nil
			}
			fmt.Printf("Duplicates:   %d\n", len(report.Collisions))
			for _, path := range report.CollisionSample {
				fmt.Printf("  %s\n", path)
			}
			if len(report.Collisions) > len(report.CollisionSample) {
				fmt.Printf("  ... and %d more\n", len(report.Collisions)-len(report.CollisionSample))
			}
			return nil
		},
	}
	addTransferFlags(cmd, f)
	return cmd
}
