package booking

import (
	"errors"
	"fmt"
)

// Store sentinels.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindConfiguration
	KindGateway
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	case KindGateway:
		return "gateway"
	case KindAuth:
		return "auth"
	}
	return "internal"
}

// Error is a failure the caller is expected to see.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
	// Raw is an upstream body kept for diagnostics (gateway errors).
	Raw []byte
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationErr(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }
func notFoundErr(msg string) error   { return &Error{Kind: KindNotFound, Msg: msg} }
func conflictErr(msg string) error   { return &Error{Kind: KindConflict, Msg: msg} }
func configErr(msg string) error     { return &Error{Kind: KindConfiguration, Msg: msg} }
func authErr(msg string, err error) error {
	return &Error{Kind: KindAuth, Msg: msg, Err: err}
}

func gatewayErr(err error, raw []byte) error {
	return &Error{Kind: KindGateway, Msg: "T-Bank init failed", Err: err, Raw: raw}
}
