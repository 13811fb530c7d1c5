package tyvm

import "errors"

// Host-side failures: malformed images, unreachable code paths, bugs in the
// compiler. These are distinct from Diagnostics, which describe problems in
// the checked program itself and are always returned as data, never as
// errors.
var (
	errMalformedImage     = errors.New("tyvm: malformed bytecode image")
	errNoMain             = errors.New("tyvm: image has no Main entry")
	errUnknownOpcode      = errors.New("tyvm: unknown opcode")
	errAddressOutOfRange  = errors.New("tyvm: address out of range")
	errStackUnderflow     = errors.New("tyvm: operand stack underflow past frame floor")
	errNoActiveSubroutine = errors.New("tyvm: no active subroutine")
)
