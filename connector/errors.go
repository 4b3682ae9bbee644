package connector

import "fmt"

// ConnectionError reports a failed transport establishment. The connection
// remains Disconnected when this is returned.
type ConnectionError struct {
	Service string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Service, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotConnectedError reports a data operation attempted without an
// established connection. Op names the rejected operation, Require the
// prior call that would have established it (Connect unless set).
type NotConnectedError struct {
	Service string
	Op      string
	Require string
}

func (e *NotConnectedError) Error() string {
	require := e.Require
	if require == "" {
		require = "Connect"
	}
	return fmt.Sprintf("%s: %s requires an established connection: call %s first", e.Service, e.Op, require)
}

// ConfigurationError reports an operation that needs optional configuration
// which was not supplied, such as provider credentials.
type ConfigurationError struct {
	Service string
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing configuration: %s", e.Service, e.Missing)
}

// DisconnectError reports a resource-release failure during teardown. The
// connection is Disconnected even when this is returned.
type DisconnectError struct {
	Service string
	Err     error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("%s: disconnect failed: %v", e.Service, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }
