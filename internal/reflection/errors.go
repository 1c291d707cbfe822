package reflection

import "fmt"

// ReflectionError reports that the server's ServerReflectionInfo call
// returned an error_response, or a non-OK gRPC status in its trailer.
type ReflectionError struct {
	Code    int32
	Message string
}

func (e *ReflectionError) Error() string {
	return fmt.Sprintf("reflection: server returned error %d: %s", e.Code, e.Message)
}

// TransportError reports a failure reaching the reflection endpoint itself
// (connection refused, timeout, any HTTP status other than 200, malformed
// framing).
type TransportError struct {
	Origin string
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("reflection: transport error contacting %s: %s", e.Origin, e.Reason)
}
