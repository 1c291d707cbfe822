package reflection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grpcweb-inspector/core/internal/framing"
)

// reflectionServicePaths are tried in order (spec §4.6 "Protocol"): the
// stable v1 service first, falling back to v1alpha for older servers.
var reflectionServicePaths = []string{
	"grpc.reflection.v1.ServerReflection",
	"grpc.reflection.v1alpha.ServerReflection",
}

// client speaks a single gRPC-Web ServerReflectionInfo round trip. The
// channel is single-shot request/response rather than a streaming client
// (spec §4.6), so each call is its own HTTP request carrying exactly one
// framed ServerReflectionRequest.
type client struct {
	http *http.Client
}

// gRPC-Web, unlike plain gRPC, is plain HTTP POST and needs no HTTP/2
// upgrade, so a stock client suffices here the way the teacher's Connect
// invoker uses one for its HTTP path.
func newClient() *client {
	return &client{http: &http.Client{Timeout: 30 * time.Second}}
}

// call sends reqBytes to origin/servicePath/ServerReflectionInfo framed as
// a single gRPC-Web data frame and decodes the first payload frame of the
// response.
func (c *client) call(ctx context.Context, origin, servicePath string, reqBytes []byte) (*response, error) {
	body := framing.FrameMessages([][]byte{reqBytes}, false)
	url := strings.TrimRight(origin, "/") + "/" + servicePath + "/ServerReflectionInfo"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Origin: origin, Reason: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/grpc-web+proto")
	httpReq.Header.Set("X-Grpc-Web", "1")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Origin: origin, Reason: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Origin: origin, Reason: err.Error()}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &TransportError{Origin: origin, Reason: fmt.Sprintf("HTTP %d", httpResp.StatusCode)}
	}

	headers := map[string]string{"content-type": httpResp.Header.Get("Content-Type")}
	unwrapped := framing.Unwrap(respBody, false, false, headers, framing.DefaultOptions())
	if len(unwrapped.Payloads) == 0 {
		return nil, &TransportError{Origin: origin, Reason: "empty reflection response body"}
	}

	if code, msg, failed := grpcTrailerStatus(unwrapped.Trailer, httpResp.Trailer); failed {
		return nil, &ReflectionError{Code: code, Message: msg}
	}

	parsed, err := decodeResponse(unwrapped.Payloads[0])
	if err != nil {
		return nil, &TransportError{Origin: origin, Reason: err.Error()}
	}
	if parsed.HasError {
		return nil, &ReflectionError{Code: parsed.ErrorCode, Message: parsed.ErrorMessage}
	}
	return parsed, nil
}

// grpcTrailerStatus reports a non-OK grpc-status carried either in the
// gRPC-Web trailer frame or (for plain h2c gRPC responses) the HTTP
// trailer.
func grpcTrailerStatus(frameTrailer map[string]string, httpTrailer http.Header) (code int32, message string, failed bool) {
	status := frameTrailer["grpc-status"]
	msg := frameTrailer["grpc-message"]
	if status == "" {
		status = httpTrailer.Get("grpc-status")
		msg = httpTrailer.Get("grpc-message")
	}
	if status == "" {
		return 0, "", false
	}
	n, err := strconv.Atoi(status)
	if err != nil || n == 0 {
		return 0, "", false
	}
	return int32(n), msg, true
}
