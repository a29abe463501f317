package services

import (
	"time"

	logger "github.com/Bparsons0904/goLogger"

	"github.com/shopspring/decimal"
)

const errorSnippetLength = 80

// RunSummary is the outcome of one orchestrator run over a period.
type RunSummary struct {
	Period      string
	SessionID   string
	TraceID     string
	Discovered  int
	Transformed int
	// Loaded includes files that were already loaded by an earlier run.
	Loaded      int
	Errors      int
	TableRows   int64
	Duration    time.Duration
	StageCounts map[string]int
	Failures    []FailedFile
	Success     bool
}

// SuccessRate is loaded over discovered, as a percentage with one decimal.
func (s RunSummary) SuccessRate() decimal.Decimal {
	if s.Discovered == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Loaded)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.Discovered))).
		Round(1)
}

func (s RunSummary) Log(log logger.Logger) {
	log.Info("Run summary",
		"period", s.Period,
		"sessionID", s.SessionID,
		"traceID", s.TraceID,
		"discovered", s.Discovered,
		"transformed", s.Transformed,
		"loaded", s.Loaded,
		"errors", s.Errors,
		"successRate", s.SuccessRate().String()+"%",
		"tableRows", s.TableRows,
		"duration", s.Duration.Round(time.Second).String(),
		"stages", s.StageCounts,
		"success", s.Success)

	for _, failure := range s.Failures {
		log.Warn("Failed file",
			"file", failure.Key.Filename,
			"stage", failure.Stage,
			"error", truncate(failure.Message, errorSnippetLength))
	}
}
