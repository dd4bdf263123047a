package wire

// TransportError reports a socket-level failure: connect, timeout, EOF or
// short write. The session is unusable afterwards.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "redis: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed wire reply.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "redis: protocol: " + e.Msg
}

// RemoteError carries an error response returned by the server.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "redis: server: " + e.Msg
}
