package models

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	TaskSheetsUpsert = "sheets_upsert"
	TaskSheetsStatus = "sheets_status"
	TaskNotify       = "notify"
)

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusRetry      = "retry"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

const (
	// MaxReasonLength bounds the free-text reason attached to a decision.
	MaxReasonLength = 500

	// DefaultSlotLockTTL is how long a venue/date advisory lock is held, in seconds.
	DefaultSlotLockTTL = 10

	// DefaultSubmissionLimit is the number of booking requests a user may submit per window.
	DefaultSubmissionLimit = 10

	// DefaultSubmissionWindow is the submission rate-limit window, in seconds.
	DefaultSubmissionWindow = 60 * 60

	// DefaultRoleCacheTTL is how long a resolved role is cached, in seconds.
	DefaultRoleCacheTTL = 5 * 60

	// WorkerQueueSize is the capacity of the in-process task queue.
	WorkerQueueSize = 1000

	// SheetsCacheTTL is how long a sheet row lookup is cached, in seconds.
	SheetsCacheTTL = 60 * 60
)
