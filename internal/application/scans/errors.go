package scans

import "errors"

var (
	ErrEmptyInput           = errors.New("input is empty")
	ErrInvalidType          = errors.New("invalid ioc type")
	ErrConfirmationRequired = errors.New("history clear requires confirmation")
	ErrArchiveDisabled      = errors.New("report archive not configured")
	ErrTooManyItems         = errors.New("too many bulk items")
	ErrMissingInputColumn   = errors.New("csv has no input column")
)

// Stage names used in StageError
const (
	StageClassification = "classification"
	StageProvider        = "provider"
	StageExtraction      = "extraction"
	StagePersistence     = "persistence"
)

// StageError tells the caller which pipeline step failed without aborting the others.
type StageError struct {
	Stage   string `json:"stage"`
	Engine  string `json:"engine,omitempty"`
	Message string `json:"message"`
}

func (e StageError) Error() string {
	if e.Engine != "" {
		return e.Stage + " (" + e.Engine + "): " + e.Message
	}
	return e.Stage + ": " + e.Message
}
