package observability

// Event types emitted by the state coordinator and backends.
const (
	EventOperationStart     EventType = "state.operation.start"
	EventOperationStop      EventType = "state.operation.stop"
	EventOperationException EventType = "state.operation.exception"
	EventOperationSlow      EventType = "state.operation.slow"

	EventMigrationStart    EventType = "state.migration.start"
	EventMigrationComplete EventType = "state.migration.complete"
	EventMigrationFailed   EventType = "state.migration.failed"

	EventRetryAttempt     EventType = "state.retry.attempt"
	EventCheckpointFailed EventType = "state.checkpoint.failed"
)
