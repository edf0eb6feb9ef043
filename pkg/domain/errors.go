package domain

import (
	"errors"
	"fmt"
)

// RecordKind names the record type a NotFoundError refers to.
type RecordKind string

const (
	// KindUser identifies a UserIndex record.
	KindUser RecordKind = "user"
	// KindSwarm identifies a Swarm record.
	KindSwarm RecordKind = "swarm"
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// NotFoundError reports an unknown user index or swarm record.
type NotFoundError struct {
	Kind RecordKind
	ID   string
}

func (e NotFoundError) Error() string {
	switch e.Kind {
	case KindUser:
		return "User not found"
	case KindSwarm:
		return fmt.Sprintf("swarm %s not found", e.ID)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// AuthorizationError reports a caller acting on a swarm it is not a member of.
type AuthorizationError struct {
	UserID  string
	SwarmID string
}

func (e AuthorizationError) Error() string {
	return "User is not part of the swarm"
}

// ConfigurationError reports a required process setting that is unset or invalid.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration %s: %s", e.Setting, e.Reason)
	}
	return fmt.Sprintf("configuration %s is not set", e.Setting)
}

// StoreError wraps a failed key-value operation.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// IsNotFoundKind reports whether err carries a NotFoundError of the given kind.
func IsNotFoundKind(err error, kind RecordKind) bool {
	var target NotFoundError
	return errors.As(err, &target) && target.Kind == kind
}

// IsAuthorization reports whether err carries an AuthorizationError.
func IsAuthorization(err error) bool {
	var target AuthorizationError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var target ConfigurationError
	return errors.As(err, &target)
}

// IsStore reports whether err carries a StoreError.
func IsStore(err error) bool {
	var target StoreError
	return errors.As(err, &target)
}
