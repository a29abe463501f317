package jobs

import (
	"context"
	"fmt"

	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/services"
)

const PeriodCheckJobName = "RAISPeriodCheck"

// PeriodRunner is the part of the orchestrator the job drives.
type PeriodRunner interface {
	LatestPeriod(ctx context.Context) (string, error)
	Resume(ctx context.Context, period string) (services.RunSummary, error)
}

// PeriodCheckJob looks for the most recent published period and resumes it.
// Periods already loaded cost one listing call.
type PeriodCheckJob struct {
	runner   PeriodRunner
	log      logger.Logger
	schedule services.Schedule
}

func NewPeriodCheckJob(runner PeriodRunner, schedule services.Schedule) *PeriodCheckJob {
	log := logger.New("periodCheckJob")
	log.Info("Creating new period check job", "schedule", schedule)

	return &PeriodCheckJob{
		runner:   runner,
		log:      log,
		schedule: schedule,
	}
}

func (j *PeriodCheckJob) Name() string {
	return PeriodCheckJobName
}

func (j *PeriodCheckJob) Schedule() services.Schedule {
	return j.schedule
}

func (j *PeriodCheckJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	period, err := j.runner.LatestPeriod(ctx)
	if err != nil {
		return log.Err("failed to find latest period", err)
	}

	log.Info("Checking period", "period", period)

	summary, err := j.runner.Resume(ctx, period)
	if err != nil {
		return log.Err("period run failed", err, "period", period)
	}

	switch {
	case !summary.Success:
		return log.Err("period run loaded nothing",
			fmt.Errorf("period %s: %d errors", period, summary.Errors),
			"period", period)
	case summary.Errors > 0:
		log.Warn("Period partially loaded",
			"period", period,
			"loaded", summary.Loaded,
			"errors", summary.Errors)
	default:
		log.Info("Period up to date", "period", period, "loaded", summary.Loaded)
	}

	return nil
}
