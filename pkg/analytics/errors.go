package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed query parameters such as start_date
	ErrValidation = errors.New("validation error")
	// ErrNotFound is matched by every *NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrStorage is matched by every *StorageError
	ErrStorage = errors.New("storage error")
)

// NotFoundError reports an unknown session or user
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StorageError wraps a fault of the event store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) hold
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsNotFound reports whether err denotes a missing resource
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// rate returns part/total*100, or 0 when total is 0
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// ratio returns part/total, or 0 when total is 0
func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// mean returns the arithmetic mean, or 0 for no values
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
