// Package record correlates captured request/response pairs with whatever
// schema the registry currently resolves, decoding each into a structured
// value tree and re-decoding past records once reflection fills a gap. See
// spec §4.7.
package record

import "github.com/grpcweb-inspector/core/internal/codec"

// Captured is the plain data the capture collaborator delivers for one HTTP
// exchange (spec §6 "Capture collaborator → core").
type Captured struct {
	ID                    string            `json:"id"`
	MethodPath            string            `json:"method_path"`
	URL                   string            `json:"url"`
	StartTimeMs           int64             `json:"start_time_ms"`
	DurationMs            int64             `json:"duration_ms"`
	HTTPStatus            int               `json:"http_status"`
	RequestHeaders        map[string]string `json:"request_headers"`
	ResponseHeaders       map[string]string `json:"response_headers"`
	RequestRaw            []byte            `json:"request_raw"`
	RequestIsText         bool              `json:"request_is_text"`
	RequestBase64Encoded  bool              `json:"request_base64_encoded"`
	ResponseRaw           []byte            `json:"response_raw"`
	ResponseIsText        bool              `json:"response_is_text"`
	ResponseBase64Encoded bool              `json:"response_base64_encoded"`
}

// Enriched is a Captured record plus whatever the framing+codec pipeline
// made of it. RequestRaw/ResponseRaw (inherited from Captured) remain
// byte-identical to the capture (spec §8 invariant 2); only the Decoded*
// and status fields are produced by processing.
type Enriched struct {
	Captured

	Origin string `json:"origin"`

	RequestDecoded  []*DecodedMessage `json:"request_decoded"`
	ResponseDecoded []*DecodedMessage `json:"response_decoded"`
	GrpcStatus      *int32            `json:"grpc_status,omitempty"`
	GrpcMessage     string            `json:"grpc_message,omitempty"`
	MethodResolved  bool              `json:"method_resolved"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// DecodedMessage pairs one framing-layer payload with its decoded value
// tree. Unary calls produce a single element; server-streaming responses
// produce one per frame, in wire order.
type DecodedMessage struct {
	RawPayload []byte      `json:"raw_payload"`
	Value      *codec.Value `json:"value"`
}
