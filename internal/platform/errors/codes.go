// Package errors provides structured error handling for player intents.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authorization errors
	CodeActorNotMember Code = "ACTOR_NOT_ROOM_MEMBER"

	// Intent errors
	CodeStaleScene         Code = "STALE_SCENE"
	CodeAlreadyResolved    Code = "SCENE_ALREADY_RESOLVED"
	CodeAlreadyRecorded    Code = "ALREADY_RECORDED"
	CodePreconditionNotMet Code = "PRECONDITION_NOT_MET"

	// Content errors
	CodeContentIntegrity Code = "CONTENT_INTEGRITY"
	CodeValidationSchema Code = "VALIDATION_SCHEMA"

	// Command errors
	CodeCommandInvalid Code = "COMMAND_INVALID"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeActorNotMember:
		return http.StatusForbidden

	case CodeStaleScene,
		CodeAlreadyResolved,
		CodePreconditionNotMet:
		return http.StatusConflict

	case CodeCommandInvalid,
		CodeValidationSchema:
		return http.StatusBadRequest

	case CodeNotFound:
		return http.StatusNotFound

	case CodeAlreadyExists:
		return http.StatusConflict

	case CodeContentIntegrity:
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}
