package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelworks/reeltransfer/internal/duplicates"
	"github.com/reelworks/reeltransfer/internal/preflight"
	"github.com/reelworks/reeltransfer/internal/progress"
	"github.com/reelworks/reeltransfer/internal/robocopy"
)

func newPreviewCmd() *cobra.Command {
	f := &transferFlags{}
	var onDuplicate string

	cmd := &cobra.Command{
		Use:   "preview SOURCE... DEST",
		Short: "Show the exact command a transfer would run",
		Long: `Build and print the invocation without running it. The same request and
duplicate action always produce an identical command line, so what preview
shows is exactly what run executes.`,
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

			var res duplicates.Resolution
			if len(report.Collisions) > 0 {
				if onDuplicate == "" {
					return fmt.Errorf("%d collision(s) at the destination; choose --on-duplicate skip|overwrite|rename", len(report.Collisions))
				}
				res, err = duplicates.Resolve(report.Collisions, duplicates.Action(onDuplicate), nil)
				if err != nil {
					return err
				}
			}

			inv, err := robocopy.Build(req, report.Collisions, res)
			if err != nil {
				return err
			}
			fmt.Println(inv.Preview())
			for _, rn := range inv.Renames {
				fmt.Printf("after copy: %s -> %s\n", rn.Source, rn.Planned)
			}
			return nil
		},
	}
	addTransferFlags(cmd, f)
	cmd.Flags().StringVar(&onDuplicate, "on-duplicate", "", "Action for destination collisions: skip, overwrite, or rename")
	return cmd
}
