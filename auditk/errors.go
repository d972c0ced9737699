package auditk

import "github.com/pkg/errors"

var (
	// ErrDuplicateFinding a vulnerability with the same fingerprint and cwe already exists
	ErrDuplicateFinding = errors.New("duplicate finding")
	// ErrUnknownCWE the cwe is not part of the supported catalog
	ErrUnknownCWE = errors.New("unknown cwe")
	// ErrUnresolvedProject no current project could be determined
	ErrUnresolvedProject = errors.New("no current project")
	// ErrItemNotFound the watch list has no item for the given path
	ErrItemNotFound = errors.New("watch item not found")
	// ErrDuplicateItem the watch list already holds an equivalent path
	ErrDuplicateItem = errors.New("watch item already exists")
	// ErrNotURL the path is neither a full URL nor expandable against the target
	ErrNotURL = errors.New("path is not an absolute URL")
	// ErrEmptyPath an empty path was supplied
	ErrEmptyPath = errors.New("empty path")
	// ErrProjectExists a project with that name is already registered
	ErrProjectExists = errors.New("project already exists")
	// ErrProjectNotFound the project is not registered
	ErrProjectNotFound = errors.New("project not found")
	// ErrProjectActive the project is in use and may not be deleted
	ErrProjectActive = errors.New("project is active")
	// ErrInvalidProjectName the name normalizes to nothing
	ErrInvalidProjectName = errors.New("invalid project name")
	// ErrDataFileRequired a project was created without a data file location
	ErrDataFileRequired = errors.New("data file location required")
	// ErrTransitioning a project switch is already in flight
	ErrTransitioning = errors.New("project transition in progress")
)

// Outcome of a mutating engine operation
type Outcome struct {
	OK     bool
	Reason string
}

// Success outcome with an optional reason
func Success(reason string) Outcome {
	return Outcome{OK: true, Reason: reason}
}

// Failure outcome from an error
func Failure(err error) Outcome {
	if err == nil {
		return Outcome{OK: false, Reason: "unknown failure"}
	}
	return Outcome{OK: false, Reason: err.Error()}
}

func (o Outcome) String() string {
	if o.OK {
		if o.Reason == "" {
			return "ok"
		}
		return "ok: " + o.Reason
	}
	return "failed: " + o.Reason
}
