package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mayowa2133/hookforge/internal/export"
	"github.com/mayowa2133/hookforge/internal/features"
	"github.com/mayowa2133/hookforge/internal/timeline"
)

var errInvalidTimeline = errors.New("timeline is invalid")

type options struct {
	timelinePath string
	opsPath      string
	output       string
	at           string
}

func (o *options) clock() (timeline.Option, error) {
	if o.at == "" {
		return timeline.WithClock(func() time.Time { return time.Now().UTC() }), nil
	}
	t, err := time.Parse(time.RFC3339, o.at)
	if err != nil {
		return nil, fmt.Errorf("invalid --at: %w", err)
	}
	return timeline.WithClock(func() time.Time { return t.UTC() }), nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "timelinectl",
		Short:         "Preview, apply and export hookforge timeline documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.at, "at", "", "fixed RFC3339 time for revision timestamps")

	root.AddCommand(
		newInitCmd(opts),
		newValidateCmd(opts),
		newHashCmd(opts),
		newPreviewCmd(opts),
		newApplyCmd(opts),
		newRenderPlanCmd(opts),
		newExportEDLCmd(opts),
		newAutoEditCmd(opts),
	)
	return root
}

func addTimelineFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.timelinePath, "timeline", "t", "", "timeline document (JSON or YAML)")
	_ = cmd.MarkFlagRequired("timeline")
}

func addOpsFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.opsPath, "ops", "", "operation batch (JSON or YAML)")
	_ = cmd.MarkFlagRequired("ops")
}

func addOutputFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file, stdout when empty")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCmd(opts *options) *cobra.Command {
	var assetsPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Lay out a new timeline document from an asset list",
		RunE: func(cmd *cobra.Command, args []string) error {
			clock, err := opts.clock()
			if err != nil {
				return err
			}
			seeds, err := readSeedAssets(assetsPath)
			if err != nil {
				return err
			}
			s, err := timeline.NewState(seeds, clock)
			if err != nil {
				return err
			}
			return writeTimeline(cmd.OutOrStdout(), opts.output, s)
		},
	}
	cmd.Flags().StringVar(&assetsPath, "assets", "", "asset list (YAML or JSON)")
	_ = cmd.MarkFlagRequired("assets")
	addOutputFlag(cmd, opts)
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a timeline document against the document invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readTimeline(opts.timelinePath)
			if err != nil {
				return err
			}
			issues := timeline.Validate(s)
			if len(issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}
			if err := printJSON(cmd.OutOrStdout(), issues); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d issues", errInvalidTimeline, len(issues))
		},
	}
	addTimelineFlag(cmd, opts)
	return cmd
}

func newHashCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the content hash of a timeline document",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readTimeline(opts.timelinePath)
			if err != nil {
				return err
			}
			h, err := timeline.Hash(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	addTimelineFlag(cmd, opts)
	return cmd
}

// previewFiles loads the document and batch and runs them through the gateway.
func previewFiles(opts *options) (timeline.Result, error) {
	clock, err := opts.clock()
	if err != nil {
		return timeline.Result{}, err
	}
	s, err := readTimeline(opts.timelinePath)
	if err != nil {
		return timeline.Result{}, err
	}
	ops, err := readOperations(opts.opsPath)
	if err != nil {
		return timeline.Result{}, err
	}
	return timeline.Preview(s, ops, clock), nil
}

func newPreviewCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Run a batch against a document without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := previewFiles(opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	addTimelineFlag(cmd, opts)
	addOpsFlag(cmd, opts)
	return cmd
}

func newApplyCmd(opts *options) *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch and write the next document",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := previewFiles(opts)
			if err != nil {
				return err
			}
			if !res.Valid {
				if err := printJSON(cmd.ErrOrStderr(), res.Issues); err != nil {
					return err
				}
				return fmt.Errorf("%w: batch rejected with %d issues", errInvalidTimeline, len(res.Issues))
			}
			out := opts.output
			if inPlace {
				out = opts.timelinePath
			}
			if err := writeTimeline(cmd.OutOrStdout(), out, res.NextState); err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "revision %d %s\n", res.Revision, res.TimelineHash)
			}
			return nil
		},
	}
	addTimelineFlag(cmd, opts)
	addOpsFlag(cmd, opts)
	addOutputFlag(cmd, opts)
	cmd.Flags().BoolVar(&inPlace, "in-place", false, "overwrite the input document")
	cmd.MarkFlagsMutuallyExclusive("in-place", "output")
	return cmd
}

func newRenderPlanCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render-plan",
		Short: "Print the ordered render segments of a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readTimeline(opts.timelinePath)
			if err != nil {
				return err
			}
			h, err := timeline.Hash(s)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), export.BuildRenderPlan(s, h))
		},
	}
	addTimelineFlag(cmd, opts)
	return cmd
}

func newExportEDLCmd(opts *options) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "export-edl",
		Short: "Render the main video track as a CMX3600 EDL",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readTimeline(opts.timelinePath)
			if err != nil {
				return err
			}
			edl, events := export.TimelineEDL(s, export.Title(title), nil)
			if events == 0 {
				return errors.New("timeline has no video clips to export")
			}
			if opts.output == "" || opts.output == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), edl)
				return err
			}
			return os.WriteFile(opts.output, []byte(edl), 0644)
		},
	}
	addTimelineFlag(cmd, opts)
	addOutputFlag(cmd, opts)
	cmd.Flags().StringVar(&title, "title", "", "EDL title")
	return cmd
}

func newAutoEditCmd(opts *options) *cobra.Command {
	var rulesPath string
	var apply bool
	cmd := &cobra.Command{
		Use:   "auto-edit",
		Short: "Plan rule-driven edits; with --apply write the edited document",
		RunE: func(cmd *cobra.Command, args []string) error {
			clock, err := opts.clock()
			if err != nil {
				return err
			}
			s, err := readTimeline(opts.timelinePath)
			if err != nil {
				return err
			}
			req, err := readRules(rulesPath)
			if err != nil {
				return err
			}
			plan, err := features.AutoEditOps(s, req)
			if err != nil {
				return err
			}
			if !apply {
				return printJSON(cmd.OutOrStdout(), struct {
					Matches    []features.RuleMatch   `json:"matches"`
					Operations timeline.OperationList `json:"operations"`
				}{plan.Matches, plan.Operations})
			}

			if len(plan.Operations) == 0 {
				return writeTimeline(cmd.OutOrStdout(), opts.output, s)
			}
			res := timeline.Preview(s, plan.Operations, clock)
			if !res.Valid {
				if err := printJSON(cmd.ErrOrStderr(), res.Issues); err != nil {
					return err
				}
				return fmt.Errorf("%w: auto edit rejected with %d issues", errInvalidTimeline, len(res.Issues))
			}
			return writeTimeline(cmd.OutOrStdout(), opts.output, res.NextState)
		},
	}
	addTimelineFlag(cmd, opts)
	addOutputFlag(cmd, opts)
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule file (YAML)")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the planned operations")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}
