package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/doctest/hostfunc"
)

func TestFindNextMessage(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantIdx     int
		wantMsgType messageType
	}{
		{"no message", "hello world", -1, messageNone},
		{"call message", "prefix\x00GORU:{}\x00suffix", 6, messageCall},
		{"flush message", "prefix\x00GORU_FLUSH:5\x00suffix", 6, messageFlush},
		{"call before flush", "\x00GORU:{}\x00\x00GORU_FLUSH:1\x00", 0, messageCall},
		{"flush before call", "\x00GORU_FLUSH:1\x00\x00GORU:{}\x00", 0, messageFlush},
		{"empty content", "", -1, messageNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, msgType := findNextMessage(tt.content)
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantMsgType, msgType)
		})
	}
}

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		idx           int
		prefix        string
		wantPayload   string
		wantRemaining string
		wantOK        bool
	}{
		{
			name:          "valid call",
			content:       "prefix\x00GORU:{\"fn\":\"test\"}\x00suffix",
			idx:           6,
			prefix:        protocolPrefix,
			wantPayload:   `{"fn":"test"}`,
			wantRemaining: "suffix",
			wantOK:        true,
		},
		{
			name:          "incomplete message",
			content:       "prefix\x00GORU:{partial",
			idx:           6,
			prefix:        protocolPrefix,
			wantRemaining: "\x00GORU:{partial",
		},
		{
			name:          "valid flush",
			content:       "\x00GORU_FLUSH:10\x00remaining",
			idx:           0,
			prefix:        protocolFlushPrefix,
			wantPayload:   "10",
			wantRemaining: "remaining",
			wantOK:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, remaining, ok := extractMessage(tt.content, tt.idx, tt.prefix)
			assert.Equal(t, tt.wantPayload, payload)
			assert.Equal(t, tt.wantRemaining, remaining)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCallRequestJSON(t *testing.T) {
	var req callRequest
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","fn":"kv_get","args":{"key":"a"}}`), &req))
	assert.Equal(t, callRequest{ID: "1", Fn: "kv_get", Args: map[string]any{"key": "a"}}, req)

	assert.Error(t, json.Unmarshal([]byte(`{invalid}`), &req))

	assert.Equal(t, "{\"id\":\"42\",\"data\":\"result\"}\n", string(encodeResponse(callResponse{ID: "42", Data: "result"})))
	assert.Equal(t, "{\"error\":\"boom\"}\n", string(encodeResponse(callResponse{Error: "boom"})))
}

// readResponses collects the JSON lines the protocol writes back to the
// interpreter.
func readResponses(r io.Reader) <-chan callResponse {
	out := make(chan callResponse, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			var resp callResponse
			if json.Unmarshal(sc.Bytes(), &resp) == nil {
				out <- resp
			}
		}
	}()
	return out
}

func testRegistry() *hostfunc.Registry {
	r := hostfunc.NewRegistry()
	r.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	})
	return r
}

func receive(t *testing.T, ch <-chan callResponse) callResponse {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
		return callResponse{}
	}
}

func TestProtocolHandlerCall(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	responses := readResponses(pr)

	p := newProtocolHandler(context.Background(), testRegistry(), pw)

	_, err := p.Write([]byte("warning: x\n\x00GORU:{\"fn\":\"echo\",\"args\":{\"msg\":\"hi\"}}\x00tail\n"))
	require.NoError(t, err)
	assert.Equal(t, callResponse{Data: "hi"}, receive(t, responses))

	_, err = p.Write([]byte("\x00GORU:{\"fn\":\"missing\",\"args\":{}}\x00"))
	require.NoError(t, err)
	assert.Equal(t, callResponse{Error: "unknown function: missing"}, receive(t, responses))

	assert.Equal(t, "warning: x\ntail\n", p.Stderr())
}

func TestProtocolHandlerSplitWrites(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	responses := readResponses(pr)

	p := newProtocolHandler(context.Background(), testRegistry(), pw)

	_, _ = p.Write([]byte("\x00GORU:{\"fn\":\"echo\","))
	_, _ = p.Write([]byte("\"args\":{\"msg\":\"split\"}}\x00"))
	assert.Equal(t, callResponse{Data: "split"}, receive(t, responses))
	assert.Empty(t, p.Stderr())
}

func TestSessionProtocolSignals(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	responses := readResponses(pr)

	p := newSessionProtocol(context.Background(), testRegistry(), pw)

	_, _ = p.Write([]byte("\x00GORU_READY\x00"))
	select {
	case <-p.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	p.ResetExec()
	_, _ = p.Write([]byte("note\n\x00GORU_DONE\x00"))
	assert.NoError(t, <-p.Done())
	assert.Equal(t, "note\n", p.Stderr())

	p.ResetExec()
	_, _ = p.Write([]byte("\x00GORU_ERROR:ValueError: bad\x00"))
	assert.EqualError(t, <-p.Done(), "ValueError: bad")

	p.ResetExec()
	_, _ = p.Write([]byte("\x00GORU:{\"fn\":\"echo\",\"args\":{\"msg\":\"sync\"}}\x00"))
	assert.Equal(t, callResponse{Data: "sync"}, receive(t, responses))
}

func TestSessionProtocolBatchedCalls(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	responses := readResponses(pr)

	p := newSessionProtocol(context.Background(), testRegistry(), pw)

	_, _ = p.Write([]byte("\x00GORU:{\"id\":\"1\",\"fn\":\"echo\",\"args\":{\"msg\":\"a\"}}\x00"))
	_, _ = p.Write([]byte("\x00GORU:{\"id\":\"2\",\"fn\":\"echo\",\"args\":{\"msg\":\"b\"}}\x00"))

	select {
	case resp := <-responses:
		t.Fatalf("response before flush: %+v", resp)
	case <-time.After(50 * time.Millisecond):
	}

	go func() { _, _ = p.Write([]byte("\x00GORU_FLUSH:2\x00")) }()

	got := map[string]any{}
	for i := 0; i < 2; i++ {
		resp := receive(t, responses)
		got[resp.ID] = resp.Data
	}
	assert.Equal(t, map[string]any{"1": "a", "2": "b"}, got)
}

func TestSessionProtocolExited(t *testing.T) {
	_, pw := io.Pipe()
	p := newSessionProtocol(context.Background(), testRegistry(), pw)

	p.Exited(nil)
	assert.EqualError(t, <-p.Done(), "interpreter exited")

	p.ResetExec()
	assert.Error(t, <-p.Done(), "later runs fail too")
}
