package platform

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrStudentNotFound is returned when the platform does not know a student.
	ErrStudentNotFound = errors.New("student not found")

	// ErrTopicNotFound is returned when a topic is not assigned to the student.
	ErrTopicNotFound = errors.New("topic not found")

	// ErrMalformedResponse is wrapped by every decode failure, including
	// responses missing required fields.
	ErrMalformedResponse = errors.New("malformed platform response")
)

// StatusError is a non-2xx answer from the platform.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
