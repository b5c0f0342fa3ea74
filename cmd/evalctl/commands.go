package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/domain/evaluation"
	"github.com/okian/evalboard/internal/domain/groundtruth"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/internal/domain/submission"
	"github.com/okian/evalboard/internal/domain/table"
	"github.com/okian/evalboard/internal/domain/types"
)

const timeLayout = "2006-01-02 15:04:05"

func newScoreCmd(c *cli) *cobra.Command {
	var (
		labelsPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "score PREDICTIONS.csv",
		Short: "Score a prediction file against a local ground truth file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawLabels, err := os.ReadFile(labelsPath)
			if err != nil {
				return err
			}
			t, err := table.ParseBytes(rawLabels)
			if err != nil {
				return fmt.Errorf("ground truth: %w", err)
			}
			labels, err := groundtruth.Parse(t, c.cfg.LabelAliases...)
			if err != nil {
				return fmt.Errorf("ground truth: %w", err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ev := evaluation.NewEvaluator(
				submission.New(
					submission.WithPolicy(c.cfg.Policy()),
					submission.WithAliases(c.cfg.PredictionAliases...),
					submission.WithLogger(c.log),
				),
				scoring.New(scoring.WithThreshold(c.cfg.Threshold), scoring.WithAverage(c.cfg.Average())),
				evaluation.WithLogger(c.log),
			)
			res, err := ev.Evaluate(cmd.Context(), labels, filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printEvaluation(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&labelsPath, "labels", "", "Ground truth CSV with id and target columns")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full evaluation as JSON")
	_ = cmd.MarkFlagRequired("labels")
	return cmd
}

func newSubmitCmd(c *cli) *cobra.Command {
	var (
		user  string
		modes []string
	)
	cmd := &cobra.Command{
		Use:   "submit PREDICTIONS.csv",
		Short: "Score a prediction file against the stored ground truth and record it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			svc, err := c.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			resp, err := svc.Submit(cmd.Context(), types.SubmitRequest{
				SessionID: uuid.NewString(),
				UserID:    user,
				Modes:     modes,
				Filename:  filepath.Base(args[0]),
				Data:      data,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printEvaluation(out, resp.Evaluation)
			for _, r := range resp.Records {
				switch {
				case r.Recorded:
					fmt.Fprintf(out, "recorded under %q after %d attempt(s)\n", r.Mode, r.Attempts)
				case r.Duplicate:
					fmt.Fprintf(out, "already recorded under %q\n", r.Mode)
				default:
					fmt.Fprintf(out, "not recorded under %q: %s\n", r.Mode, r.Error)
				}
			}
			for _, w := range resp.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if !resp.Recorded && user != "" {
				return fmt.Errorf("submission was scored but not fully recorded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Name shown on the leaderboard; empty scores without recording")
	cmd.Flags().StringSliceVar(&modes, "mode", nil, "Modes to record under")
	return cmd
}

func newLeaderboardCmd(c *cli) *cobra.Command {
	var (
		mode   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the best result per user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				limit = c.cfg.MaxLeaderboardLimit
			}
			svc, err := c.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			entries, err := svc.Leaderboard(cmd.Context(), mode, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tNAME\tSCORE\tIDS\tMODE\tSUBMISSIONS\tLAST")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%.4f\t%d\t%s\t%d\t%s\n",
					e.Rank, e.Name, e.Score, e.NIDs, e.Mode, e.Submissions, e.LastSubmission.UTC().Format(timeLayout))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Only rank results recorded under this mode")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (default max_leaderboard_limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print every recorded result, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Stop()

			recs, err := svc.History(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tUSER\tSCORE\tIDS\tMODE\tFINGERPRINT")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%.4f\t%d\t%s\t%s\n",
					r.Timestamp.UTC().Format(timeLayout), r.UserID, r.Score, r.NIDs, r.Mode, shortFingerprint(r.FileFingerprint))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed GROUND_TRUTH.csv",
		Short: "Store the ground truth file under ground_truth_key unless one exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			t, err := table.ParseBytes(data)
			if err != nil {
				return fmt.Errorf("ground truth: %w", err)
			}
			if _, err := groundtruth.Parse(t, c.cfg.LabelAliases...); err != nil {
				return fmt.Errorf("ground truth: %w", err)
			}

			store, err := blobstore.Open(cmd.Context(), c.cfg.BlobSettings(), c.log.Named("blobstore"))
			if err != nil {
				return err
			}
			defer func() { _ = blobstore.Close(store) }()

			created, err := blobstore.Seed(cmd.Context(), store, c.cfg.GroundTruthKey, data)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", c.cfg.GroundTruthKey)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists, left unchanged\n", c.cfg.GroundTruthKey)
			}
			return nil
		},
	}
}

func printEvaluation(w io.Writer, ev evaluation.Evaluation) {
	fmt.Fprintf(w, "file:        %s\n", ev.Filename)
	fmt.Fprintf(w, "score:       %.4f%% (F1 %s)\n", ev.Score, ev.Average)
	fmt.Fprintf(w, "accuracy:    %.4f\n", ev.Accuracy)
	fmt.Fprintf(w, "matched ids: %d\n", ev.NIDs)
	if ev.Binarized {
		fmt.Fprintf(w, "binarized:   %s at %.2f\n", ev.Binarization, ev.Threshold)
	}
	for _, msg := range ev.Warnings {
		fmt.Fprintf(w, "note:        %s\n", msg)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortFingerprint(fp string) string {
	fp = strings.TrimSpace(fp)
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
