package common

import "errors"

// Code is the stable identifier of a failure kind. Codes never change once
// published; callers branch on them instead of matching message text.
type Code string

// Error is a module failure carrying a stable code. Sentinel values are
// compared with errors.Is, which matches on module and code so wrapped copies
// still compare equal.
type Error struct {
	Module string
	Code   Code
	Msg    string
}

// NewError constructs a coded module error.
func NewError(module string, code Code, msg string) *Error {
	return &Error{Module: module, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Module == "" {
		return e.Msg
	}
	return e.Module + ": " + e.Msg
}

// Is reports whether target carries the same module and code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return e.Module == other.Module && e.Code == other.Code
}

// CodeOf extracts the stable code from err. Errors raised outside the escrow
// modules report an empty code.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Code
	}
	return ""
}

// ModuleOf extracts the module that raised err.
func ModuleOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Module
	}
	return ""
}
