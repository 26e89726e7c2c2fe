package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/doctest/hostfunc"
)

// Protocol constants used by interpreter preludes to talk to the host.
// A call is \x00GORU:{json}\x00; calls carrying an id are queued until
// \x00GORU_FLUSH:n\x00 releases them as one batch.
const (
	protocolPrefix      = "\x00GORU:"
	protocolFlushPrefix = "\x00GORU_FLUSH:"
	protocolSuffix      = "\x00"
)

type callRequest struct {
	ID   string         `json:"id,omitempty"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageFlush
)

// findNextMessage returns the position and kind of the earliest protocol
// message in content.
func findNextMessage(content string) (int, messageType) {
	callIdx := strings.Index(content, protocolPrefix)
	flushIdx := strings.Index(content, protocolFlushPrefix)

	switch {
	case callIdx == -1 && flushIdx == -1:
		return -1, messageNone
	case callIdx == -1:
		return flushIdx, messageFlush
	case flushIdx == -1:
		return callIdx, messageCall
	case flushIdx < callIdx:
		return flushIdx, messageFlush
	default:
		return callIdx, messageCall
	}
}

// extractMessage splits off the payload of the message starting at idx.
// When the terminator has not arrived yet it returns the message unread.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	start := idx + len(prefix)
	end := strings.Index(content[start:], protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(protocolSuffix):], true
}

func executeCall(ctx context.Context, registry *hostfunc.Registry, req callRequest) callResponse {
	fn, ok := registry.Get(req.Fn)
	if !ok {
		return callResponse{ID: req.ID, Error: "unknown function: " + req.Fn}
	}

	result, err := fn(ctx, req.Args)
	if err != nil {
		return callResponse{ID: req.ID, Error: err.Error()}
	}
	return callResponse{ID: req.ID, Data: result}
}

func encodeResponse(resp callResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}
	return append(data, '\n')
}

// protocolHandler intercepts stderr of a one-shot run to handle host
// function calls. Regular stderr output passes through.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	mu          sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		startIdx := strings.Index(content, protocolPrefix)
		if startIdx == -1 {
			p.realStderr.WriteString(content)
			p.buf.Reset()
			break
		}

		p.realStderr.WriteString(content[:startIdx])

		payload, remaining, ok := extractMessage(content, startIdx, protocolPrefix)
		if !ok {
			p.buf.Reset()
			p.buf.WriteString(remaining)
			break
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)

		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			p.respond(callResponse{Error: "invalid call format"})
			continue
		}
		p.respond(executeCall(p.ctx, p.registry, req))
	}

	return len(data), nil
}

func (p *protocolHandler) respond(resp callResponse) {
	data := encodeResponse(resp)
	go p.stdinWriter.Write(data)
}

func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
