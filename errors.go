package orchestrator

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("orchestrator: no store configured")
	ErrNoPublisher     = errors.New("orchestrator: no message publisher configured")
	ErrStoreClosed     = errors.New("orchestrator: store closed")
	ErrMigrationFailed = errors.New("orchestrator: migration failed")

	// Not found errors.
	ErrRequestNotFound       = errors.New("orchestrator: request not found")
	ErrResponseNotFound      = errors.New("orchestrator: response not found")
	ErrOrchestrationNotFound = errors.New("orchestrator: orchestration request not found")
	ErrAssignmentNotFound    = errors.New("orchestrator: worker assignment not found")
	ErrWorkerNotFound        = errors.New("orchestrator: worker not found")
	ErrEventNotFound         = errors.New("orchestrator: event not found")
	ErrDeadLetterNotFound    = errors.New("orchestrator: dead letter entry not found")

	// Conflict errors.
	ErrRequestExists        = errors.New("orchestrator: request already exists")
	ErrDuplicateSubmission  = errors.New("orchestrator: duplicate submission for idempotency key")
	ErrWorkerAlreadyExists  = errors.New("orchestrator: worker already registered")

	// State errors.
	ErrInvalidState       = errors.New("orchestrator: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("orchestrator: max retries exceeded")

	// Routing and transport errors.
	ErrNoWorkerAvailable = errors.New("orchestrator: no worker available")
	ErrPublishFailed     = errors.New("orchestrator: message publish failed")

	// Pool errors.
	ErrPoolClosed    = errors.New("orchestrator: execution pool closed")
	ErrPoolSaturated = errors.New("orchestrator: execution pool saturated")
)
