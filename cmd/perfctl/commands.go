package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"student-perf/internal/features"
	"student-perf/internal/ml"
	"student-perf/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		status, err := newClient().Health(ctx)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

var predictFlags struct {
	attendance, marks, internal, final float64
	studentID, courseID                int64
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "predict pass/fail for one student",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		item := ml.BatchItem{Input: features.Input{
			Attendance:    features.Float(predictFlags.attendance),
			Marks:         features.Float(predictFlags.marks),
			InternalScore: features.Float(predictFlags.internal),
		}}
		if cmd.Flags().Changed("final-exam-score") {
			item.FinalExamScore = features.Float(predictFlags.final)
		}
		if cmd.Flags().Changed("student-id") {
			item.StudentID = &predictFlags.studentID
		}
		if cmd.Flags().Changed("course-id") {
			item.CourseID = &predictFlags.courseID
		}

		ctx, cancel := commandContext()
		defer cancel()

		result, err := newClient().Predict(ctx, item)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "predict a batch from a JSON file of items, or every stored enrollment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var items []ml.BatchItem
		if batchFile != "" {
			data, err := os.ReadFile(batchFile)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("parse %s: %w", batchFile, err)
			}
		}

		ctx, cancel := commandContext()
		defer cancel()

		result, err := newClient().PredictBatch(ctx, items)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var retrainCSV string

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "retrain the model from a training CSV, or from stored enrollments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows []ml.Sample
		if retrainCSV != "" {
			f, err := os.Open(retrainCSV)
			if err != nil {
				return err
			}
			defer f.Close()

			if rows, err = storage.ReadTrainingCSV(f); err != nil {
				return err
			}
			log.Info().Int("rows", len(rows)).Str("file", retrainCSV).Msg("Uploading training rows")
		}

		ctx, cancel := commandContext()
		defer cancel()

		report, err := newClient().Retrain(ctx, rows)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "show or set the decision threshold",
}

var thresholdGetCmd = &cobra.Command{
	Use:   "get",
	Short: "show the threshold in effect and its source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := newClient().Threshold(ctx)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var thresholdSetCmd = &cobra.Command{
	Use:   "set <value>",
	Short: "persist a user threshold strictly between 0 and 1",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold %q", args[0])
		}

		ctx, cancel := commandContext()
		defer cancel()

		resp, err := newClient().SetThreshold(ctx, value)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "import an enrollment CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx, cancel := commandContext()
		defer cancel()

		summary, err := newClient().Import(ctx, f)
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "download the training-ready enrollment CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var w io.Writer = os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		ctx, cancel := commandContext()
		defer cancel()

		return newClient().Export(ctx, w)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "show the metadata of the deployed model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		meta, err := newClient().ModelInfo(ctx)
		if err != nil {
			return err
		}
		return printJSON(meta)
	},
}

func init() {
	flags := predictCmd.Flags()
	flags.Float64Var(&predictFlags.attendance, "attendance", 0, "attendance percentage (0-100)")
	flags.Float64Var(&predictFlags.marks, "marks", 0, "overall marks (0-100)")
	flags.Float64Var(&predictFlags.internal, "internal-score", 0, "internal score (0-100)")
	flags.Float64Var(&predictFlags.final, "final-exam-score", 0, "final exam score (0-100), optional")
	flags.Int64Var(&predictFlags.studentID, "student-id", 0, "student id echoed in the response")
	flags.Int64Var(&predictFlags.courseID, "course-id", 0, "course id echoed in the response")
	for _, name := range []string{"attendance", "marks", "internal-score"} {
		if err := predictCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON array of batch items")
	retrainCmd.Flags().StringVar(&retrainCSV, "csv", "", "training CSV (attendance, marks, internal_score, result)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the CSV to this file instead of stdout")

	thresholdCmd.AddCommand(thresholdGetCmd, thresholdSetCmd)
}
