package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/caffeineduck/doctest/hostfunc"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionBusy   = errors.New("session busy")
)

// Session is a long-lived interpreter instance. It implements io.Closer.
type Session struct {
	exec     *Executor
	lang     Language
	cfg      sessionConfig
	registry *hostfunc.Registry

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *sessionOutput
	protocol    *sessionProtocol
	cancel      context.CancelFunc

	mu       sync.Mutex
	execMu   sync.Mutex
	closed   bool
	started  bool
	startErr error
}

// NewSession starts a long-lived interpreter whose state persists across
// Run calls.
func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.env["GORU_SESSION"] = "1"

	s := &Session{
		exec:     e,
		lang:     lang,
		cfg:      cfg,
		registry: e.runRegistry(cfg.kv),
	}

	if err := s.start(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	compiled, err := s.exec.getCompiled(ctx, s.lang)
	if err != nil {
		cancel()
		s.startErr = err
		return err
	}

	s.stdinReader, s.stdin = io.Pipe()
	s.stdout = newSessionOutput()
	s.protocol = newSessionProtocol(ctx, s.registry, s.stdin)

	initCode := s.lang.SessionInit() + s.lang.WrapCode("")
	args := s.lang.Args(initCode)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.protocol).
		WithStdin(s.stdinReader).
		WithArgs(args...).
		WithName("")

	for k, v := range s.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	exited := make(chan error, 1)
	go func() {
		mod, err := s.exec.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		// Unblock a Run waiting to write its command.
		s.stdinReader.Close()
		s.protocol.Exited(err)
		exited <- err
	}()

	select {
	case <-s.protocol.Ready():
		s.started = true
		return nil
	case err := <-exited:
		if err == nil {
			err = errors.New("interpreter exited before it was ready")
		}
		s.startErr = fmt.Errorf("start session: %w", err)
		s.closeLocked()
		return s.startErr
	case <-time.After(s.cfg.startTimeout):
		s.startErr = errors.New("session start timeout")
		s.closeLocked()
		return s.startErr
	}
}

type execCommand struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// Run executes code in the session. A session runs one snippet at a time;
// a concurrent call fails with ErrSessionBusy.
func (s *Session) Run(ctx context.Context, code string) Result {
	start := time.Now()

	if !s.execMu.TryLock() {
		return Result{Error: ErrSessionBusy, Duration: time.Since(start)}
	}
	defer s.execMu.Unlock()

	if s.Closed() {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}

	if !s.started {
		return Result{Error: s.startErr, Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.stdout.Reset()
	s.protocol.ResetExec()

	cmd := execCommand{Type: "exec", Code: code}
	cmdBytes, _ := json.Marshal(cmd)
	cmdBytes = append(cmdBytes, '\n')

	if _, err := s.stdin.Write(cmdBytes); err != nil {
		return Result{Error: fmt.Errorf("write command: %w", err), Duration: time.Since(start)}
	}

	select {
	case <-ctx.Done():
		// The interpreter is still busy with the snippet, so the session
		// cannot be reused.
		s.Close()
		return Result{
			Output:   s.stdout.String() + s.protocol.Stderr(),
			Error:    fmt.Errorf("timeout after %v", s.cfg.timeout),
			Duration: time.Since(start),
		}
	case execErr := <-s.protocol.Done():
		return Result{
			Output:   s.stdout.String() + s.protocol.Stderr(),
			Error:    execErr,
			Duration: time.Since(start),
		}
	}
}

// Close stops the interpreter. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// Closed reports whether the session can no longer run code.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true

	// Closing stdin gives the interpreter EOF even when it is blocked on a
	// read.
	if s.stdinReader != nil {
		s.stdinReader.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}

const (
	sessionDoneSignal  = "\x00GORU_DONE\x00"
	sessionErrorPrefix = "\x00GORU_ERROR:"
	sessionReadySignal = "\x00GORU_READY\x00"
)

type sessionProtocol struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter

	buf        bytes.Buffer
	realStderr bytes.Buffer
	pending    []callRequest

	readyCh chan struct{}
	doneCh  chan error
	ready   bool
	exited  bool

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newSessionProtocol(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *sessionProtocol {
	return &sessionProtocol{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
		pending:     make([]callRequest, 0),
		readyCh:     make(chan struct{}),
		doneCh:      make(chan error, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(data)
	p.buf.Write(data)

	for {
		content := p.buf.String()

		if p.checkSessionSignals(content) {
			continue
		}

		if p.processProtocolMessages(content) {
			continue
		}

		break
	}

	return n, nil
}

func (p *sessionProtocol) checkSessionSignals(content string) bool {
	if idx := strings.Index(content, sessionReadySignal); idx != -1 {
		if idx > 0 {
			p.realStderr.WriteString(content[:idx])
		}
		p.buf.Reset()
		p.buf.WriteString(content[idx+len(sessionReadySignal):])

		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
		return true
	}

	if idx := strings.Index(content, sessionDoneSignal); idx != -1 {
		if idx > 0 {
			p.realStderr.WriteString(content[:idx])
		}
		p.buf.Reset()
		p.buf.WriteString(content[idx+len(sessionDoneSignal):])

		select {
		case p.doneCh <- nil:
		default:
		}
		return true
	}

	if idx := strings.Index(content, sessionErrorPrefix); idx != -1 {
		afterPrefix := content[idx+len(sessionErrorPrefix):]
		if endIdx := strings.Index(afterPrefix, "\x00"); endIdx != -1 {
			errMsg := afterPrefix[:endIdx]
			if idx > 0 {
				p.realStderr.WriteString(content[:idx])
			}
			p.buf.Reset()
			p.buf.WriteString(afterPrefix[endIdx+1:])

			select {
			case p.doneCh <- errors.New(errMsg):
			default:
			}
			return true
		}
	}

	return false
}

func (p *sessionProtocol) processProtocolMessages(content string) bool {
	idx, msgType := findNextMessage(content)
	if msgType == messageNone {
		return false
	}

	if idx > 0 {
		p.realStderr.WriteString(content[:idx])
		p.buf.Reset()
		p.buf.WriteString(content[idx:])
		content = p.buf.String()
		idx = 0
	}

	switch msgType {
	case messageFlush:
		payload, remaining, ok := extractMessage(content, idx, protocolFlushPrefix)
		if !ok {
			return false
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)
		p.handleFlush(payload)
		return true

	case messageCall:
		payload, remaining, ok := extractMessage(content, idx, protocolPrefix)
		if !ok {
			return false
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)
		p.handleCall(payload)
		return true
	}

	return false
}

func (p *sessionProtocol) handleFlush(payload string) {
	count := 0
	fmt.Sscanf(payload, "%d", &count)
	if count <= 0 || count > len(p.pending) {
		count = len(p.pending)
	}
	if count == 0 {
		return
	}

	requests := p.pending[:count]
	p.pending = p.pending[count:]

	var wg sync.WaitGroup
	wg.Add(len(requests))

	for _, req := range requests {
		go func(r callRequest) {
			defer wg.Done()
			p.respond(p.executeCall(r))
		}(req)
	}

	wg.Wait()
}

func (p *sessionProtocol) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}

	if req.ID != "" {
		p.pending = append(p.pending, req)
	} else {
		// Execute and respond in goroutine to avoid blocking Write()
		go func() {
			p.respond(p.executeCall(req))
		}()
	}
}

func (p *sessionProtocol) executeCall(req callRequest) callResponse {
	return executeCall(p.ctx, p.registry, req)
}

func (p *sessionProtocol) respond(resp callResponse) {
	data := encodeResponse(resp)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(data)
}

// Exited records that the interpreter stopped and fails any pending run.
func (p *sessionProtocol) Exited(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exited = true
	if err == nil {
		err = errors.New("interpreter exited")
	} else {
		err = fmt.Errorf("interpreter exited: %w", err)
	}
	select {
	case p.doneCh <- err:
	default:
	}
}

func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Done() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

func (p *sessionProtocol) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.doneCh = make(chan error, 1)
	if p.exited {
		p.doneCh <- errors.New("interpreter exited")
	}
	p.realStderr.Reset()
}

func (p *sessionProtocol) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
