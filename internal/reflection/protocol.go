// Package reflection drives the gRPC Server Reflection protocol to obtain
// FileDescriptorSet material on demand, with per-origin state tracking and
// concurrent-caller coalescing. See spec §4.6.
package reflection

import (
	"fmt"

	"github.com/grpcweb-inspector/core/internal/wire"
)

// ServerReflectionRequest field numbers (spec §6 "gRPC Server Reflection
// wire format"). Only the request kinds the coordinator issues are listed;
// server_capabilities and all_extension_numbers_of_type are never sent.
const (
	reqFieldHost              = 1
	reqFieldFileByFilename    = 3
	reqFieldFileContainingSym = 4
	reqFieldListServices      = 7
)

// ServerReflectionResponse field numbers.
const (
	respFieldFileDescriptorResponse = 4
	respFieldListServicesResponse   = 6
	respFieldErrorResponse          = 7
)

const (
	fileDescriptorResponseFieldProto = 1

	listServicesResponseFieldService = 1
	serviceResponseFieldName         = 1

	errorResponseFieldCode    = 1
	errorResponseFieldMessage = 2
)

// encodeRequest builds a ServerReflectionRequest with host=1 (one source
// variant in the wild omits it; the coordinator always passes the origin's
// host, per spec §9) and the given oneof field carrying value. An empty
// host is left out of the message.
func encodeRequest(host string, fieldNum int32, value string) []byte {
	w := wire.NewWriter()
	if host != "" {
		w.WriteTag(reqFieldHost, wire.WireLengthDelimited)
		w.WriteLengthDelimited([]byte(host))
	}
	w.WriteTag(fieldNum, wire.WireLengthDelimited)
	w.WriteLengthDelimited([]byte(value))
	return w.Bytes()
}

// listServicesRequest builds a ServerReflectionRequest selecting
// list_services. The field's value is conventionally empty or the service
// name under inspection; this coordinator always sends the empty string,
// matching the common client convention of listing everything.
func listServicesRequest(host string) []byte {
	return encodeRequest(host, reqFieldListServices, "")
}

func fileContainingSymbolRequest(host, symbol string) []byte {
	return encodeRequest(host, reqFieldFileContainingSym, symbol)
}

func fileByFilenameRequest(host, filename string) []byte {
	return encodeRequest(host, reqFieldFileByFilename, filename)
}

// response is the decoded subset of ServerReflectionResponse this
// coordinator cares about.
type response struct {
	FileDescriptorProtos [][]byte
	Services             []string
	HasError             bool
	ErrorCode            int32
	ErrorMessage         string
}

func decodeResponse(data []byte) (*response, error) {
	r := wire.NewReader(data)
	out := &response{}
	for !r.Done() {
		num, wt, err := r.ReadTag()
		if err != nil {
			return nil, fmt.Errorf("reflection: reading response tag: %w", err)
		}
		switch num {
		case respFieldFileDescriptorResponse:
			b, err := r.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			protos, err := decodeFileDescriptorResponse(b)
			if err != nil {
				return nil, err
			}
			out.FileDescriptorProtos = append(out.FileDescriptorProtos, protos...)
		case respFieldListServicesResponse:
			b, err := r.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			svcs, err := decodeListServicesResponse(b)
			if err != nil {
				return nil, err
			}
			out.Services = svcs
		case respFieldErrorResponse:
			b, err := r.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			code, msg, err := decodeErrorResponse(b)
			if err != nil {
				return nil, err
			}
			out.HasError = true
			out.ErrorCode = code
			out.ErrorMessage = msg
		default:
			if err := r.SkipField(wt); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func decodeFileDescriptorResponse(data []byte) ([][]byte, error) {
	r := wire.NewReader(data)
	var out [][]byte
	for !r.Done() {
		num, wt, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		if num == fileDescriptorResponseFieldProto {
			b, err := r.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			out = append(out, b)
			continue
		}
		if err := r.SkipField(wt); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeListServicesResponse(data []byte) ([]string, error) {
	r := wire.NewReader(data)
	var out []string
	for !r.Done() {
		num, wt, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		if num == listServicesResponseFieldService {
			b, err := r.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			name, err := decodeServiceResponseName(b)
			if err != nil {
				return nil, err
			}
			out = append(out, name)
			continue
		}
		if err := r.SkipField(wt); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeServiceResponseName(data []byte) (string, error) {
	r := wire.NewReader(data)
	name := ""
	for !r.Done() {
		num, wt, err := r.ReadTag()
		if err != nil {
			return "", err
		}
		if num == serviceResponseFieldName {
			s, _, err := r.ReadString()
			if err != nil {
				return "", err
			}
			name = s
			continue
		}
		if err := r.SkipField(wt); err != nil {
			return "", err
		}
	}
	return name, nil
}

func decodeErrorResponse(data []byte) (int32, string, error) {
	r := wire.NewReader(data)
	var code int32
	var msg string
	for !r.Done() {
		num, wt, err := r.ReadTag()
		if err != nil {
			return 0, "", err
		}
		switch num {
		case errorResponseFieldCode:
			v, err := r.ReadVarint()
			if err != nil {
				return 0, "", err
			}
			code = int32(v)
		case errorResponseFieldMessage:
			s, _, err := r.ReadString()
			if err != nil {
				return 0, "", err
			}
			msg = s
		default:
			if err := r.SkipField(wt); err != nil {
				return 0, "", err
			}
		}
	}
	return code, msg, nil
}
