package main

import (
	"github.com/ivlev/media2ascii/internal/domain"
)

const (
	ExitOK                  = 0
	ExitCLIError            = 1
	ExitMissingDep          = 2
	ExitInvalidConfig       = 3
	ExitSourceUnreadable    = 4
	ExitCorruptStream       = 5
	ExitConfigTooAggressive = 6
	ExitDestinationExists   = 7
	ExitEncodeFailed        = 8
	ExitCancelled           = 130
)

// ExitError связывает ошибку с кодом завершения процесса.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return domain.MessageOf(e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode переводит ошибку задачи в код завершения.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidConfig:
		return ExitInvalidConfig
	case domain.KindSourceUnreadable:
		return ExitSourceUnreadable
	case domain.KindCorruptStream:
		return ExitCorruptStream
	case domain.KindConfigTooAggressive:
		return ExitConfigTooAggressive
	case domain.KindDestinationExists:
		return ExitDestinationExists
	case domain.KindEncodeFailed:
		return ExitEncodeFailed
	case domain.KindCancelled:
		return ExitCancelled
	default:
		return ExitCLIError
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: exitCode(err), Err: err}
}
