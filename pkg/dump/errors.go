package dump

import "fmt"

// ErrNotFound is returned when no dump file exists under the given name.
type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("conversation dump %q not found", e.Name)
}

// ErrInvalidFormat is returned when a dump file exists but is not a usable
// dump document, most importantly when the messages field is missing.
type ErrInvalidFormat struct {
	Name   string
	Reason string
}

func (e ErrInvalidFormat) Error() string {
	return fmt.Sprintf("conversation dump %q is invalid: %s", e.Name, e.Reason)
}
