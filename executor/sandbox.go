package executor

import (
	"context"
	"time"

	"github.com/caffeineduck/doctest"
)

// SessionKeyPrefix prefixes the environment binding that holds a
// language's session.
const SessionKeyPrefix = "__wasm_session__:"

type wasmSandbox struct {
	exec *Executor
	lang Language
	opts []SessionOption
	key  string
}

// Sandbox adapts the executor to doctest.Sandbox. Each environment gets
// its own Session, started on first use and closed when the environment
// is cleared.
func (e *Executor) Sandbox(lang Language, opts ...SessionOption) doctest.Sandbox {
	return &wasmSandbox{
		exec: e,
		lang: lang,
		opts: opts,
		key:  SessionKeyPrefix + lang.Name(),
	}
}

func (w *wasmSandbox) Execute(ctx context.Context, source string, env doctest.Environment) doctest.Result {
	start := time.Now()
	if env == nil {
		env = doctest.Environment{}
	}

	s, ok := env[w.key].(*Session)
	if !ok || s.Closed() {
		var err error
		s, err = w.exec.NewSession(w.lang, w.opts...)
		if err != nil {
			delete(env, w.key)
			return doctest.Result{Env: env, Error: err, Duration: time.Since(start)}
		}
		env[w.key] = s
	}

	res := s.Run(ctx, source)
	return doctest.Result{
		Env:      env,
		Output:   res.Output,
		Error:    res.Error,
		Duration: res.Duration,
	}
}
