package jobs

import (
	logger "github.com/Bparsons0904/goLogger"
	"raisloader/internal/services"
)

const (
	Daily  = services.Daily
	Hourly = services.Hourly
)

func RegisterAllJobs(schedulerService *services.SchedulerService, services services.Service) error {
	log := logger.New("jobs").Function("RegisterAllJobs")
	log.Info("Registering jobs")

	periodCheckJob := NewPeriodCheckJob(services.Orchestration, Daily)
	if err := schedulerService.AddJob(periodCheckJob); err != nil {
		return log.Err("failed to register period check job", err)
	}
	log.Info("Registered period check job", "schedule", "daily")

	fileCleanupJob := NewFileCleanupJob(services.FileCleanup, Hourly)
	if err := schedulerService.AddJob(fileCleanupJob); err != nil {
		return log.Err("failed to register file cleanup job", err)
	}
	log.Info("Registered file cleanup job", "schedule", "hourly")

	return nil
}
