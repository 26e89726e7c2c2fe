package doctest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closer struct {
	closed bool
	err    error
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestEnvironmentClone(t *testing.T) {
	var nilEnv Environment
	assert.NotNil(t, nilEnv.Clone())

	env := Environment{"x": 1}
	c := env.Clone()
	c["y"] = 2
	assert.NotContains(t, env, "y")
}

func TestEnvironmentClear(t *testing.T) {
	ok := &closer{}
	bad := &closer{err: errors.New("boom")}
	env := Environment{"a": ok, "b": bad, "c": 3}

	err := env.Clear()
	assert.ErrorContains(t, err, "close b: boom")
	assert.Empty(t, env)
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestDocTestString(t *testing.T) {
	tests := []struct {
		name string
		test DocTest
		want string
	}{
		{"empty", DocTest{Name: "pkg.F", Location: Location{File: "f.go", Line: 3}}, "<DocTest pkg.F from f.go:3 (no examples)>"},
		{"one", DocTest{Name: "x", Examples: []*Example{{}}, Location: Location{Line: UnknownLine}}, "<DocTest x from unknown:-1 (1 example)>"},
		{"many", DocTest{Name: "y", Examples: []*Example{{}, {}}, Location: Location{File: "a.md"}}, "<DocTest y from a.md:0 (2 examples)>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.test.String())
		})
	}
}
