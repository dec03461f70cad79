package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind классифицирует сбой задачи. У каждой упавшей задачи ровно один Kind.
type Kind string

const (
	KindInvalidConfig       Kind = "InvalidConfig"
	KindSourceUnreadable    Kind = "SourceUnreadable"
	KindCorruptStream       Kind = "CorruptStream"
	KindConfigTooAggressive Kind = "ConfigTooAggressive"
	KindDestinationExists   Kind = "DestinationExists"
	KindEncodeFailed        Kind = "EncodeFailed"
	KindCancelled           Kind = "Cancelled"
)

// Error - ошибка с Kind и понятным человеку сообщением.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap отдаёт исходную причину для errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError создаёт ошибку с Kind и стеком вызовов.
func NewError(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// WrapError помечает err указанным kind. Для nil возвращает nil.
func WrapError(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err})
}

// KindOf возвращает Kind первой *Error в цепочке err или "", если её нет.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// MessageOf возвращает понятное человеку описание err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		if de.Err != nil {
			return fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return de.Message
	}
	return err.Error()
}
