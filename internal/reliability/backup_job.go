package reliability

import (
	"context"
	"time"
)

// backupTimeout caps one backup run, including the upload
const backupTimeout = 10 * time.Minute

// BackupJob runs a backup and rotates old archives. Satisfies the
// scheduler's Job interface.
type BackupJob struct {
	service *BackupService
	keep    int
}

// NewBackupJob creates the scheduled backup job
func NewBackupJob(service *BackupService, keep int) *BackupJob {
	return &BackupJob{service: service, keep: keep}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "backup" }

// Run creates, uploads, and rotates backups
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	return j.service.RotateOldBackups(ctx, j.keep)
}
