package socket

import "errors"

var (
	// ErrInvalidArgument is returned by Create when sockType does not
	// match SockMRP.
	ErrInvalidArgument = errors.New("socket: invalid argument")
	// ErrResourceInit is returned by Create when a resource it builds
	// itself (the optional dedup cache) could not be set up. A missing
	// Config.Transport is reported as ErrInvalidArgument.
	ErrResourceInit = errors.New("socket: resource initialization failed")
	// ErrTransport wraps a failure from the underlying datagram
	// transport surfaced from SendTo, Bind, or Close.
	ErrTransport = errors.New("socket: transport error")
	// ErrPayloadTooLarge is returned by SendTo when the caller's
	// payload exceeds Config.PayloadCap.
	ErrPayloadTooLarge = errors.New("socket: payload exceeds cap")
	// ErrClosed is returned by RecvFrom and SendTo once the socket has
	// been closed and by InsertWithBackoff/EnqueueWithBackoff callers
	// whose wait was interrupted by Close. This is a deliberate
	// deviation from the reference design, where recv never returns an
	// error and blocks forever even past a conceptual close — see
	// DESIGN.md.
	ErrClosed = errors.New("socket: closed")
)
