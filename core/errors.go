package core

import (
	"errors"
	"fmt"
)

// Errors a program can return to the host. Every one of them aborts the
// invocation and no account change is kept.
var (
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrTruncatedArgument  = errors.New("truncated instruction argument")
	ErrMissingAccount     = errors.New("not enough account keys")
	ErrCorruptState       = errors.New("corrupt account state")
	ErrSerialization      = errors.New("account data too small for state")
)

// ErrCustom is returned for codes the host does not recognise.
var ErrCustom = errors.New("custom program error")

// Wire codes for program errors. Code 0 means success and is never
// assigned to an error.
const (
	CodeSuccess uint32 = iota
	CodeUnknownInstruction
	CodeTruncatedArgument
	CodeMissingAccount
	CodeCorruptState
	CodeSerialization
	CodeCustom
)

var codeErrors = []struct {
	code uint32
	err  error
}{
	{CodeUnknownInstruction, ErrUnknownInstruction},
	{CodeTruncatedArgument, ErrTruncatedArgument},
	{CodeMissingAccount, ErrMissingAccount},
	{CodeCorruptState, ErrCorruptState},
	{CodeSerialization, ErrSerialization},
}

// ErrorCode maps an error returned by a program to its wire code.
// Unknown errors map to CodeCustom, nil maps to CodeSuccess.
func ErrorCode(err error) uint32 {
	if err == nil {
		return CodeSuccess
	}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeCustom
}

// ErrorFromCode is the inverse of ErrorCode.
func ErrorFromCode(code uint32) error {
	if code == CodeSuccess {
		return nil
	}
	for _, ce := range codeErrors {
		if ce.code == code {
			return ce.err
		}
	}
	return fmt.Errorf("%w: code %d", ErrCustom, code)
}
