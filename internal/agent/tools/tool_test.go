package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryUnknownAction(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	out, err := registry.Invoke(context.Background(), "teleport", nil)
	require.NoError(t, err)
	require.Equal(t, "未知工具：teleport", out.Text)
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(NewCalculator())

	out, err := registry.Invoke(context.Background(), "calculator", map[string]any{
		"expression": "2+3",
	})
	require.NoError(t, err)
	require.Equal(t, "2+3 = 5", out.Text)
	require.Equal(t, []string{"calculator"}, registry.Names())
}

func TestStringParam(t *testing.T) {
	t.Parallel()

	params := map[string]any{
		"city":  "  北京  ",
		"count": 3,
	}
	require.Equal(t, "北京", stringParam(params, "city"))
	require.Equal(t, "3", stringParam(params, "count"))
	require.Equal(t, "", stringParam(params, "missing"))
}
