package j1939

import "errors"

// ErrBadHeader is returned when a 29-bit CAN identifier or Header cannot be decoded or encoded.
var ErrBadHeader = errors.New("j1939: bad header")

// ErrInvalidArgument is returned when a caller-supplied value is structurally invalid for the
// operation requested, for example a global address passed where a specific address is required.
var ErrInvalidArgument = errors.New("j1939: invalid argument")

// ErrBusError is returned when the underlying transport reports an error frame or remote
// transmission request frame where a data frame was expected.
var ErrBusError = errors.New("j1939: bus error")

// ErrClosed is returned by a Connection's send methods after Close; a RawSocket may also return
// it for use after Close, which Connection treats as a shutdown rather than a bus failure.
var ErrClosed = errors.New("j1939: closed")
