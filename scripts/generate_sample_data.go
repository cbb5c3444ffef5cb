package main

import (
	"bytes"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"student-perf/internal/storage"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// enrollmentRow mirrors the enrollment CSV accepted by the import endpoint.
type enrollmentRow struct {
	StudentID      int64  `csv:"student_id"`
	CourseID       int64  `csv:"course_id"`
	Attendance     string `csv:"attendance"`
	Marks          string `csv:"marks"`
	InternalScore  string `csv:"internal_score"`
	FinalExamScore string `csv:"final_exam_score"`
	Result         string `csv:"result"`
}

func main() {
	var (
		students    = flag.Int("students", 200, "Number of students to generate")
		courses     = flag.Int("courses", 3, "Number of courses per student")
		seed        = flag.Int64("seed", 42, "Random seed")
		missingRate = flag.Float64("missing", 0.03, "Probability that a feature cell is left blank")
		unlabeled   = flag.Float64("unlabeled", 0.1, "Probability that a result is left blank")
		outputPath  = flag.String("output", "data/student_data.csv", "Output CSV path")
		dataPath    = flag.String("data", "", "Also import the rows into the enrollment store at this directory")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fmt.Printf("Generating sample enrollments...\n")
	fmt.Printf("  Students: %d\n", *students)
	fmt.Printf("  Courses: %d\n", *courses)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *outputPath)

	rng := rand.New(rand.NewSource(*seed))
	rows := generateEnrollments(rng, *students, *courses, *missingRate, *unlabeled)

	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode CSV")
	}
	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	if err := os.WriteFile(*outputPath, buf.Bytes(), 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *outputPath).Msg("Failed to write CSV")
	}

	if *dataPath != "" {
		store, err := storage.New(*dataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open enrollment store")
		}
		defer store.Close()

		summary, err := store.ImportCSV(bytes.NewReader(buf.Bytes()))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to import enrollments")
		}
		fmt.Printf("✓ Imported %d new and %d updated enrollments into %s\n", summary.Imported, summary.Updated, *dataPath)
	}

	fmt.Printf("✓ Generated %d enrollments\n", len(rows))
}

// generateEnrollments draws correlated signals per student and labels each
// enrollment with a logistic pass model over the three features.
func generateEnrollments(rng *rand.Rand, students, courses int, missingRate, unlabeledRate float64) []*enrollmentRow {
	rows := make([]*enrollmentRow, 0, students*courses)

	for s := 1; s <= students; s++ {
		ability := rng.NormFloat64()
		diligence := rng.NormFloat64()

		for c := 1; c <= courses; c++ {
			attendance := clamp(75 + 15*diligence + 5*rng.NormFloat64())
			marks := clamp(60 + 15*ability + 5*diligence + 8*rng.NormFloat64())
			internal := clamp(0.6*marks + 0.2*attendance + 12 + 6*rng.NormFloat64())
			final := clamp(marks + 10*rng.NormFloat64())

			z := 0.04*(attendance-70) + 0.09*(marks-58) + 0.03*(internal-60)
			result := 0
			if rng.Float64() < 1/(1+math.Exp(-z)) {
				result = 1
			}

			row := &enrollmentRow{
				StudentID:      int64(s),
				CourseID:       int64(100 + c),
				Attendance:     maybeBlank(rng, attendance, missingRate),
				Marks:          maybeBlank(rng, marks, missingRate),
				InternalScore:  maybeBlank(rng, internal, missingRate),
				FinalExamScore: maybeBlank(rng, final, 0.3),
			}
			if rng.Float64() >= unlabeledRate {
				row.Result = strconv.Itoa(result)
			}
			rows = append(rows, row)
		}
	}

	return rows
}

func maybeBlank(rng *rand.Rand, v, rate float64) string {
	if rng.Float64() < rate {
		return ""
	}
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
