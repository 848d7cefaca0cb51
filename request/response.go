package request

import (
	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// ResponseStatus is the outcome state carried by a Response.
type ResponseStatus string

const (
	// ResponsePending means the work was dispatched and the final outcome
	// has not arrived yet.
	ResponsePending ResponseStatus = "pending"
	// ResponseSuccess means the work completed successfully.
	ResponseSuccess ResponseStatus = "success"
	// ResponsePartial means some, but not all, of a multi-step job produced
	// results.
	ResponsePartial ResponseStatus = "partial"
	// ResponseError means the work failed.
	ResponseError ResponseStatus = "error"
)

// ErrorCode identifies the category of a failed response.
type ErrorCode string

const (
	// CodeNoWorkerAvailable means routing found no healthy worker able to
	// handle the request type. A normal, expected outcome.
	CodeNoWorkerAvailable ErrorCode = "NO_WORKER_AVAILABLE"
	// CodeMessagePublishFailed means the dispatch message could not reach
	// the bus.
	CodeMessagePublishFailed ErrorCode = "MESSAGE_PUBLISH_FAILED"
	// CodeWorkerError means the worker reported a failure while executing.
	CodeWorkerError ErrorCode = "WORKER_ERROR"
	// CodeValidationFailed means the submitted job was malformed.
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// RespError is the structured error attached to a failed Response.
type RespError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Response records the outcome of a Request. Immutable once created;
// a request's latest response is authoritative.
type Response struct {
	orchestrator.Entity

	ID        id.ResponseID  `json:"id"`
	RequestID id.RequestID   `json:"request_id"`
	Status    ResponseStatus `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	Error     *RespError     `json:"error,omitempty"`
}

// Pending builds the placeholder response returned while a dispatched
// request awaits its worker reply.
func Pending(requestID id.RequestID) *Response {
	return &Response{
		Entity:    orchestrator.NewEntity(),
		ID:        id.NewResponseID(),
		RequestID: requestID,
		Status:    ResponsePending,
	}
}

// Success builds a final successful response.
func Success(requestID id.RequestID, result map[string]any) *Response {
	return &Response{
		Entity:    orchestrator.NewEntity(),
		ID:        id.NewResponseID(),
		RequestID: requestID,
		Status:    ResponseSuccess,
		Result:    result,
	}
}

// Partial builds a response carrying results from a subset of a
// multi-step job.
func Partial(requestID id.RequestID, result map[string]any) *Response {
	return &Response{
		Entity:    orchestrator.NewEntity(),
		ID:        id.NewResponseID(),
		RequestID: requestID,
		Status:    ResponsePartial,
		Result:    result,
	}
}

// Errorf builds a failed response with the given code and message.
// details carries the underlying cause when one exists (e.g. the bus
// error text for a publish failure).
func Errorf(requestID id.RequestID, code ErrorCode, message, details string) *Response {
	return &Response{
		Entity:    orchestrator.NewEntity(),
		ID:        id.NewResponseID(),
		RequestID: requestID,
		Status:    ResponseError,
		Error: &RespError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
