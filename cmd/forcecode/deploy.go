package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"forcecode/internal/artifact"
	"forcecode/internal/deploy"
	"forcecode/internal/diagnostics"
	"forcecode/internal/notify"
)

var errDeployFailed = errors.New("deploy failed")

func newDeployCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "deploy FILE...",
		Short: "Deploy source files to the org and print compile problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
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

			store := diagnostics.NewStore()
			console := &consoleSink{out: cmd.ErrOrStderr()}
			deployer := deploy.New(gw, deploy.SettingsFromProject(project), store,
				deploy.WithNotifier(notify.Multi{console, notify.NewLogSink(nil), events}))

			failed := false
			var results []deploy.Result
			for _, path := range args {
				a, err := artifact.Load(path)
				if err != nil {
					failed = true
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					results = append(results, deploy.Result{
						Path:        path,
						Message:     err.Error(),
						Diagnostics: []protocol.Diagnostic{},
					})
					continue
				}
				res, err := deployer.Deploy(ctx, a)
				if err != nil || !res.Success {
					failed = true
				}
				results = append(results, res)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					printDiagnostics(cmd.OutOrStdout(), res.Path, store.Get(res.Path))
				}
			}

			if failed {
				return errDeployFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

// printDiagnostics writes compiler-style "file:line:col: message" lines with
// one-based positions.
func printDiagnostics(w io.Writer, path string, diags []protocol.Diagnostic) {
	for _, d := range diags {
		level := "error"
		if d.Severity != nil && *d.Severity == protocol.DiagnosticSeverityWarning {
			level = "warning"
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", path, d.Range.Start.Line+1, d.Range.Start.Character+1, level, d.Message)
	}
}
