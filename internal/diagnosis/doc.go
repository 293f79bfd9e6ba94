// Package diagnosis tracks defects found on a job and their repair
// lifecycle. Each diagnosis progresses PENDING -> IN_PROGRESS -> DONE (or
// WONT_FIX) independently of the job's own stage; the lifecycle engine
// consults CanLeaveRepairStage before letting a job out of repair.
package diagnosis
