package expr

import (
	"context"
	"strings"
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/codecache/envelope"
)

func TestExecute(t *testing.T) {
	e := New(Config{
		Parameters: map[string]any{"x": 4.0, "name": "cache"},
		Functions: map[string]govaluate.ExpressionFunction{
			"upper": func(args ...any) (any, error) { return strings.ToUpper(args[0].(string)), nil },
		},
	})
	ctx := context.Background()

	cases := []struct {
		code string
		want any
	}{
		{"1 + 2;", 3.0},
		{"x * 2", 8.0},
		{"x > 3 && name == 'cache'", true},
		{"upper(name)", "CACHE"},
	}
	for _, tc := range cases {
		v, err := e.Execute(ctx, "id", envelope.Wrap(tc.code))
		require.NoError(t, err, tc.code)
		assert.Equal(t, tc.want, v, tc.code)
	}
}

func TestErrors(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()

	_, err := e.Execute(ctx, "id", envelope.Wrap(""))
	assert.ErrorContains(t, err, "empty expression")

	_, err = e.Execute(ctx, "id", envelope.Wrap("(1 + "))
	assert.Error(t, err)

	_, err = e.Execute(ctx, "id", envelope.Wrap("y + 1"))
	assert.ErrorContains(t, err, `unknown parameter "y"`)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Execute(cctx, "id", envelope.Wrap("1"))
	assert.ErrorIs(t, err, context.Canceled)
}
