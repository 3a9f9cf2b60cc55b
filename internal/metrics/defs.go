package metrics

const (
	// per-run job counts, labelled by status
	MetricJobs           = "imapmigrate_jobs"
	MetricRecordsSkipped = "imapmigrate_records_skipped"

	// one series per failed mailbox
	MetricJobFailed = "imapmigrate_job_failed"

	// run
	MetricRunDurationSeconds = "imapmigrate_run_duration_seconds"
	MetricLastRunTimestamp   = "imapmigrate_last_run_timestamp_seconds"
	MetricMaxConcurrency     = "imapmigrate_max_concurrency"
)
