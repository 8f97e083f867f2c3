package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	Name    string
	Next    *node
	OnClick func()
	hidden  int
}

func TestMakeSafeObjectPrimitives(t *testing.T) {
	testCases := []struct {
		name  string
		input any
	}{
		{"nil", nil},
		{"string", "hello"},
		{"int", 42},
		{"float", 3.5},
		{"bool", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.input, MakeSafeObject(tc.input))
		})
	}
}

func TestMakeSafeObjectOmitsFunctions(t *testing.T) {
	input := map[string]any{
		"title":   "Hello",
		"onClick": func() {},
		"nested": map[string]any{
			"count":  2,
			"handle": func(int) int { return 0 },
		},
	}

	out, ok := MakeSafeObject(input).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello", out["title"])
	assert.NotContains(t, out, "onClick")

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, nested["count"])
	assert.NotContains(t, nested, "handle")
}

func TestMakeSafeObjectSelfReference(t *testing.T) {
	m := map[string]any{"name": "loop"}
	m["self"] = m

	var out map[string]any
	require.NotPanics(t, func() {
		out = MakeSafeObject(m).(map[string]any)
	})

	assert.Equal(t, "loop", out["name"])
	assert.Contains(t, out, "self")
	assert.Nil(t, out["self"])
}

func TestMakeSafeObjectPointerCycle(t *testing.T) {
	n := &node{Name: "a", OnClick: func() {}, hidden: 7}
	n.Next = n

	out, ok := MakeSafeObject(n).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", out["Name"])
	assert.Nil(t, out["Next"])
	assert.NotContains(t, out, "OnClick")
	assert.NotContains(t, out, "hidden")
}

func TestMakeSafeObjectArrays(t *testing.T) {
	items := []any{"a", 1, func() {}, []string{"x", "y"}}

	out, ok := MakeSafeObject(items).([]any)
	require.True(t, ok)
	require.Len(t, out, 4)
	assert.Equal(t, "a", out[0])
	assert.Equal(t, 1, out[1])
	assert.Nil(t, out[2])
	assert.Equal(t, []any{"x", "y"}, out[3])

	arr := [2]int{1, 2}
	assert.Equal(t, []any{1, 2}, MakeSafeObject(arr))
}

func TestMakeSafeObjectSharedReferenceCollapses(t *testing.T) {
	shared := map[string]any{"v": 1}
	input := map[string]any{"list": []any{shared, shared}}

	out := MakeSafeObject(input).(map[string]any)
	list := out["list"].([]any)
	require.Len(t, list, 2)

	// Exactly one of the two references is copied, the other collapses.
	nils := 0
	for _, item := range list {
		if item == nil {
			nils++
		}
	}
	assert.Equal(t, 1, nils)
}

func TestMakeSafeObjectDoesNotAlias(t *testing.T) {
	input := map[string]any{"tags": []any{"a"}}
	out := MakeSafeObject(input).(map[string]any)

	out["tags"].([]any)[0] = "changed"
	assert.Equal(t, "a", input["tags"].([]any)[0])
}

func TestMakeSafeObjectNonStringKeys(t *testing.T) {
	out := MakeSafeObject(map[int]string{1: "one"}).(map[string]any)
	assert.Equal(t, "one", out["1"])
}
