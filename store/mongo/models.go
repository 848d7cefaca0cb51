package mongo

import (
	"fmt"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/deadletter"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/event"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/orchestration"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/request"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/worker"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/workflow"
)

// ── Request model ─────────────────────────────────────────────────

type requestModel struct {
	ID        string         `bson:"_id"`
	Type      string         `bson:"type"`
	Payload   map[string]any `bson:"payload,omitempty"`
	Metadata  metadataModel  `bson:"metadata"`
	Status    string         `bson:"status"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type metadataModel struct {
	UserID    string `bson:"user_id,omitempty"`
	SessionID string `bson:"session_id,omitempty"`
	Priority  int    `bson:"priority,omitempty"`
	Timeout   int64  `bson:"timeout,omitempty"`
	Source    string `bson:"source,omitempty"`
}

func toRequestModel(r *request.Request) *requestModel {
	return &requestModel{
		ID:      r.ID.String(),
		Type:    string(r.Type),
		Payload: r.Payload,
		Metadata: metadataModel{
			UserID:    r.Metadata.UserID,
			SessionID: r.Metadata.SessionID,
			Priority:  r.Metadata.Priority,
			Timeout:   r.Metadata.Timeout.Nanoseconds(),
			Source:    r.Metadata.Source,
		},
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromRequestModel(m *requestModel) (*request.Request, error) {
	parsedID, err := id.ParseRequestID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse request id %q: %w", m.ID, err)
	}

	return &request.Request{
		Entity: orchestrator.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      parsedID,
		Type:    request.Type(m.Type),
		Payload: m.Payload,
		Metadata: request.Metadata{
			UserID:    m.Metadata.UserID,
			SessionID: m.Metadata.SessionID,
			Priority:  m.Metadata.Priority,
			Timeout:   time.Duration(m.Metadata.Timeout),
			Source:    m.Metadata.Source,
		},
		Status: request.Status(m.Status),
	}, nil
}

// ── Response model ────────────────────────────────────────────────

type responseModel struct {
	ID        string          `bson:"_id"`
	RequestID string          `bson:"request_id"`
	Status    string          `bson:"status"`
	Result    map[string]any  `bson:"result,omitempty"`
	Error     *respErrorModel `bson:"error,omitempty"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

type respErrorModel struct {
	Code    string `bson:"code"`
	Message string `bson:"message"`
	Details string `bson:"details,omitempty"`
}

func toResponseModel(r *request.Response) *responseModel {
	m := &responseModel{
		ID:        r.ID.String(),
		RequestID: r.RequestID.String(),
		Status:    string(r.Status),
		Result:    r.Result,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Error != nil {
		m.Error = &respErrorModel{
			Code:    string(r.Error.Code),
			Message: r.Error.Message,
			Details: r.Error.Details,
		}
	}
	return m
}

func fromResponseModel(m *responseModel) (*request.Response, error) {
	parsedID, err := id.ParseResponseID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse response id %q: %w", m.ID, err)
	}
	requestID, err := id.ParseRequestID(m.RequestID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse response request id %q: %w", m.RequestID, err)
	}

	r := &request.Response{
		Entity: orchestrator.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        parsedID,
		RequestID: requestID,
		Status:    request.ResponseStatus(m.Status),
		Result:    m.Result,
	}
	if m.Error != nil {
		r.Error = &request.RespError{
			Code:    request.ErrorCode(m.Error.Code),
			Message: m.Error.Message,
			Details: m.Error.Details,
		}
	}
	return r, nil
}

// ── Orchestration model ───────────────────────────────────────────

type orchestrationModel struct {
	ID             string            `bson:"_id"`
	UserID         string            `bson:"user_id"`
	Workflow       string            `bson:"workflow"`
	Status         string            `bson:"status"`
	Data           map[string]any    `bson:"data,omitempty"`
	Result         map[string]any    `bson:"result,omitempty"`
	Error          string            `bson:"error,omitempty"`
	CorrelationID  string            `bson:"correlation_id,omitempty"`
	IdempotencyKey string            `bson:"idempotency_key,omitempty"`
	CompletedAt    *time.Time        `bson:"completed_at,omitempty"`
	Assignments    []assignmentModel `bson:"assignments"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
}

type assignmentModel struct {
	ID          string         `bson:"_id"`
	RequestID   string         `bson:"request_id"`
	WorkerID    string         `bson:"worker_id,omitempty"`
	WorkerType  string         `bson:"worker_type"`
	Status      string         `bson:"status"`
	Response    map[string]any `bson:"response,omitempty"`
	Error       string         `bson:"error,omitempty"`
	StartedAt   *time.Time     `bson:"started_at,omitempty"`
	CompletedAt *time.Time     `bson:"completed_at,omitempty"`
	RetryCount  int            `bson:"retry_count"`
	MaxRetries  int            `bson:"max_retries"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

func toOrchestrationModel(r *orchestration.Request) *orchestrationModel {
	assignments := r.Assignments()
	models := make([]assignmentModel, 0, len(assignments))
	for _, a := range assignments {
		models = append(models, assignmentModel{
			ID:          a.ID.String(),
			RequestID:   a.RequestID.String(),
			WorkerID:    a.WorkerID.String(),
			WorkerType:  string(a.WorkerType),
			Status:      string(a.Status),
			Response:    a.Response,
			Error:       a.Error,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
			RetryCount:  a.RetryCount,
			MaxRetries:  a.MaxRetries,
			CreatedAt:   a.CreatedAt,
			UpdatedAt:   a.UpdatedAt,
		})
	}

	return &orchestrationModel{
		ID:             r.ID.String(),
		UserID:         r.UserID,
		Workflow:       string(r.Workflow),
		Status:         string(r.Status),
		Data:           r.Data,
		Result:         r.Result,
		Error:          r.Error,
		CorrelationID:  r.CorrelationID,
		IdempotencyKey: r.IdempotencyKey,
		CompletedAt:    r.CompletedAt,
		Assignments:    models,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromOrchestrationModel(m *orchestrationModel) (*orchestration.Request, error) {
	parsedID, err := id.ParseOrchestrationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse orchestration id %q: %w", m.ID, err)
	}

	r := &orchestration.Request{
		ID:             parsedID,
		UserID:         m.UserID,
		Workflow:       workflow.Type(m.Workflow),
		Status:         orchestration.Status(m.Status),
		Data:           m.Data,
		Result:         m.Result,
		Error:          m.Error,
		CorrelationID:  m.CorrelationID,
		IdempotencyKey: m.IdempotencyKey,
		CompletedAt:    m.CompletedAt,
	}

	for i := range m.Assignments {
		a, convErr := fromAssignmentModel(&m.Assignments[i])
		if convErr != nil {
			return nil, convErr
		}
		r.AddAssignment(a)
	}

	// AddAssignment touches UpdatedAt; restore the stored timestamps last.
	r.Entity = orchestrator.Entity{
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	return r, nil
}

func fromAssignmentModel(m *assignmentModel) (*orchestration.Assignment, error) {
	parsedID, err := id.ParseAssignmentID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse assignment id %q: %w", m.ID, err)
	}

	a := &orchestration.Assignment{
		Entity: orchestrator.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		WorkerType:  worker.Type(m.WorkerType),
		Status:      orchestration.AssignmentStatus(m.Status),
		Response:    m.Response,
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
	}
	if m.WorkerID != "" {
		workerID, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr != nil {
			return nil, fmt.Errorf("orchestrator/mongo: parse assignment worker id %q: %w", m.WorkerID, wErr)
		}
		a.WorkerID = workerID
	}
	return a, nil
}

// ── Worker model ──────────────────────────────────────────────────

type workerModel struct {
	ID              string            `bson:"_id"`
	Type            string            `bson:"type"`
	Status          string            `bson:"status"`
	Capabilities    []capabilityModel `bson:"capabilities,omitempty"`
	Connection      connectionModel   `bson:"connection"`
	LastHealthCheck *time.Time        `bson:"last_health_check,omitempty"`
	CreatedAt       time.Time         `bson:"created_at"`
	UpdatedAt       time.Time         `bson:"updated_at"`
}

type capabilityModel struct {
	Name                  string   `bson:"name"`
	SupportedRequestTypes []string `bson:"supported_request_types,omitempty"`
	MaxConcurrency        int      `bson:"max_concurrency"`
}

type connectionModel struct {
	Host     string `bson:"host"`
	Port     int    `bson:"port"`
	Protocol string `bson:"protocol,omitempty"`
}

func toWorkerModel(w *worker.Worker) *workerModel {
	caps := make([]capabilityModel, 0, len(w.Capabilities))
	for _, c := range w.Capabilities {
		types := make([]string, 0, len(c.SupportedRequestTypes))
		for _, t := range c.SupportedRequestTypes {
			types = append(types, string(t))
		}
		caps = append(caps, capabilityModel{
			Name:                  c.Name,
			SupportedRequestTypes: types,
			MaxConcurrency:        c.MaxConcurrency,
		})
	}

	return &workerModel{
		ID:           w.ID.String(),
		Type:         string(w.Type),
		Status:       string(w.Status),
		Capabilities: caps,
		Connection: connectionModel{
			Host:     w.Connection.Host,
			Port:     w.Connection.Port,
			Protocol: w.Connection.Protocol,
		},
		LastHealthCheck: w.LastHealthCheck,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

func fromWorkerModel(m *workerModel) (*worker.Worker, error) {
	parsedID, err := id.ParseWorkerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse worker id %q: %w", m.ID, err)
	}

	caps := make([]worker.Capability, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		types := make([]request.Type, 0, len(c.SupportedRequestTypes))
		for _, t := range c.SupportedRequestTypes {
			types = append(types, request.Type(t))
		}
		caps = append(caps, worker.Capability{
			Name:                  c.Name,
			SupportedRequestTypes: types,
			MaxConcurrency:        c.MaxConcurrency,
		})
	}

	return &worker.Worker{
		Entity: orchestrator.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Type:         worker.Type(m.Type),
		Status:       worker.Status(m.Status),
		Capabilities: caps,
		Connection: worker.Connection{
			Host:     m.Connection.Host,
			Port:     m.Connection.Port,
			Protocol: m.Connection.Protocol,
		},
		LastHealthCheck: m.LastHealthCheck,
	}, nil
}

// ── Event model ───────────────────────────────────────────────────

type eventModel struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Payload   []byte    `bson:"payload,omitempty"`
	UserID    string    `bson:"user_id,omitempty"`
	Acked     bool      `bson:"acked"`
	CreatedAt time.Time `bson:"created_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:        evt.ID.String(),
		Name:      evt.Name,
		Payload:   evt.Payload,
		UserID:    evt.UserID,
		Acked:     evt.Acked,
		CreatedAt: evt.CreatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	parsedID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse event id %q: %w", m.ID, err)
	}

	return &event.Event{
		ID:        parsedID,
		Name:      m.Name,
		Payload:   m.Payload,
		UserID:    m.UserID,
		Acked:     m.Acked,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Dead-letter model ─────────────────────────────────────────────

type deadLetterModel struct {
	ID              string         `bson:"_id"`
	OrchestrationID string         `bson:"orchestration_id"`
	AssignmentID    string         `bson:"assignment_id"`
	WorkerType      string         `bson:"worker_type"`
	UserID          string         `bson:"user_id,omitempty"`
	Data            map[string]any `bson:"data,omitempty"`
	Error           string         `bson:"error"`
	RetryCount      int            `bson:"retry_count"`
	MaxRetries      int            `bson:"max_retries"`
	FailedAt        time.Time      `bson:"failed_at"`
	ReplayedAt      *time.Time     `bson:"replayed_at,omitempty"`
	CreatedAt       time.Time      `bson:"created_at"`
}

func toDeadLetterModel(e *deadletter.Entry) *deadLetterModel {
	return &deadLetterModel{
		ID:              e.ID.String(),
		OrchestrationID: e.OrchestrationID.String(),
		AssignmentID:    e.AssignmentID.String(),
		WorkerType:      string(e.WorkerType),
		UserID:          e.UserID,
		Data:            e.Data,
		Error:           e.Error,
		RetryCount:      e.RetryCount,
		MaxRetries:      e.MaxRetries,
		FailedAt:        e.FailedAt,
		ReplayedAt:      e.ReplayedAt,
		CreatedAt:       e.CreatedAt,
	}
}

func fromDeadLetterModel(m *deadLetterModel) (*deadletter.Entry, error) {
	parsedID, err := id.ParseDeadLetterID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse dead letter id %q: %w", m.ID, err)
	}
	orchID, err := id.ParseOrchestrationID(m.OrchestrationID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse dead letter orchestration id %q: %w", m.OrchestrationID, err)
	}
	asgID, err := id.ParseAssignmentID(m.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator/mongo: parse dead letter assignment id %q: %w", m.AssignmentID, err)
	}

	return &deadletter.Entry{
		ID:              parsedID,
		OrchestrationID: orchID,
		AssignmentID:    asgID,
		WorkerType:      worker.Type(m.WorkerType),
		UserID:          m.UserID,
		Data:            m.Data,
		Error:           m.Error,
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		FailedAt:        m.FailedAt,
		ReplayedAt:      m.ReplayedAt,
		CreatedAt:       m.CreatedAt,
	}, nil
}
