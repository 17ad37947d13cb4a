package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"forcecode/internal/config"
	"forcecode/internal/notify"
	"forcecode/internal/resource"
)

func newBundleCommand(opts *rootOptions) *cobra.Command {
	var excludes []string

	cmd := &cobra.Command{
		Use:   "bundle [NAME]",
		Short: "Zip a resource bundle or SPA and deploy it as a static resource",
		Long: "Without NAME, lists the bundles under resource-bundles/ and spa/.\n" +
			"With NAME, zips that bundle into src/staticresources/NAME.resource and upserts it.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			root := config.Root(opts.projectFile)

			if len(args) == 0 {
				bundles, err := resource.List(root)
				if err != nil {
					return err
				}
				for _, b := range bundles {
					fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s\n", b.Name, b.Type)
				}
				return nil
			}

			b, err := resource.Find(root, args[0])
			if err != nil {
				return err
			}
			project, gw, err := session(ctx, opts)
			if err != nil {
				return err
			}
			events, d := callbacks(project, nil)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				closeDispatcher(closeCtx, d)
			}()

			bundlerOpts := []resource.Option{
				resource.WithNotifier(notify.Multi{&consoleSink{out: cmd.ErrOrStderr()}, notify.NewLogSink(nil), events}),
			}
			if len(excludes) > 0 {
				bundlerOpts = append(bundlerOpts, resource.WithExcludes(excludes))
			}

			res, err := resource.NewBundler(gw, root, bundlerOpts...).Deploy(ctx, b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d bytes -> %s\n", res.Name, res.Files, res.Size, res.Archive)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Glob patterns to skip (replaces the defaults)")
	return cmd
}
