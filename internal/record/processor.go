package record

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/grpcweb-inspector/core/internal/codec"
	"github.com/grpcweb-inspector/core/internal/framing"
	"github.com/grpcweb-inspector/core/internal/reflection"
	"github.com/grpcweb-inspector/core/internal/registry"
)

// Processor implements the record-processing pipeline of spec §4.7: parse
// the method path, trigger/await reflection, decode request and response
// through framing+codec, and extract trailer status.
type Processor struct {
	reg         *registry.Registry
	coordinator *reflection.Coordinator
	codecOpts   codec.Options
	framingOpts framing.Options

	mu       sync.Mutex
	emitted  []*Enriched
}

func NewProcessor(reg *registry.Registry, coordinator *reflection.Coordinator, codecOpts codec.Options, framingOpts framing.Options) *Processor {
	return &Processor{
		reg:         reg,
		coordinator: coordinator,
		codecOpts:   codecOpts,
		framingOpts: framingOpts,
	}
}

// Process runs the full pipeline for one captured record and remembers it
// so a later schema update can trigger a re-decode (spec §4.6 "Emission").
func (p *Processor) Process(ctx context.Context, rec Captured) *Enriched {
	enriched := p.decode(ctx, rec)
	p.mu.Lock()
	p.emitted = append(p.emitted, enriched)
	p.mu.Unlock()
	return enriched
}

// decode performs steps 1-5 of spec §4.7 without touching the emitted-list
// bookkeeping, so it can also be used by ReplayMatching for re-decodes.
func (p *Processor) decode(ctx context.Context, rec Captured) *Enriched {
	out := &Enriched{Captured: rec}
	out.Origin = originOf(rec.URL)

	methodPath := rec.MethodPath
	if methodPath == "" {
		methodPath = pathOf(rec.URL)
	}

	_, resolved := p.reg.FindMethod(methodPath)

	if !resolved && p.coordinator != nil && out.Origin != "" {
		if err := p.coordinator.EnsureReflected(ctx, out.Origin); err != nil {
			out.Warnings = append(out.Warnings, err.Error())
		}
		_, resolved = p.reg.FindMethod(methodPath)
	}
	out.MethodResolved = resolved

	var inputType, outputType string
	if m, ok := p.reg.FindMethod(methodPath); ok {
		if m.Input != nil {
			inputType = string(m.Input.FullName())
		}
		if m.Output != nil {
			outputType = string(m.Output.FullName())
		}
	}

	reqResult := framing.Unwrap(rec.RequestRaw, rec.RequestIsText, rec.RequestBase64Encoded, rec.RequestHeaders, p.framingOpts)
	out.Warnings = append(out.Warnings, reqResult.Warnings...)
	for _, payload := range reqResult.Payloads {
		out.RequestDecoded = append(out.RequestDecoded, &DecodedMessage{
			RawPayload: payload,
			Value:      codec.Decode(p.reg, inputType, payload, p.codecOpts),
		})
	}

	respResult := framing.Unwrap(rec.ResponseRaw, rec.ResponseIsText, rec.ResponseBase64Encoded, rec.ResponseHeaders, p.framingOpts)
	out.Warnings = append(out.Warnings, respResult.Warnings...)
	for _, payload := range respResult.Payloads {
		out.ResponseDecoded = append(out.ResponseDecoded, &DecodedMessage{
			RawPayload: payload,
			Value:      codec.Decode(p.reg, outputType, payload, p.codecOpts),
		})
	}

	if respResult.Trailer != nil {
		if s, ok := respResult.Trailer["grpc-status"]; ok {
			if n, err := strconv.Atoi(s); err == nil {
				status := int32(n)
				out.GrpcStatus = &status
			}
		}
		if m, ok := respResult.Trailer["grpc-message"]; ok {
			if decoded, err := url.QueryUnescape(m); err == nil {
				out.GrpcMessage = decoded
			} else {
				out.GrpcMessage = m
			}
		}
	}

	return out
}

// ReplayMatching re-decodes every previously processed record whose method
// path now resolves, replacing decoded fields while preserving every
// captured raw field and identity (spec §4.7 idempotence, §4.6
// "Emission"). It returns the re-decoded records in original emission
// order.
func (p *Processor) ReplayMatching(ctx context.Context) []*Enriched {
	p.mu.Lock()
	snapshot := append([]*Enriched(nil), p.emitted...)
	p.mu.Unlock()

	var redone []*Enriched
	for i, prev := range snapshot {
		methodPath := prev.MethodPath
		if methodPath == "" {
			methodPath = pathOf(prev.URL)
		}
		if _, ok := p.reg.FindMethod(methodPath); !ok {
			continue
		}
		fresh := p.decode(ctx, prev.Captured)
		p.mu.Lock()
		if i < len(p.emitted) {
			p.emitted[i] = fresh
		}
		p.mu.Unlock()
		redone = append(redone, fresh)
	}
	return redone
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}
