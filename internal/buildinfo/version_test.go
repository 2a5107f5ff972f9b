package buildinfo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.1.0-dev", Current.String())
	assert.Equal(t, "1.2.3", Version{Major: 1, Minor: 2, Patch: 3}.String())
}

func TestVersionEqualIsExact(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		other Version
		equal bool
	}{
		{"same", Version{Major: 0, Minor: 1, Patch: 0, Label: label("dev")}, true},
		{"major", Version{Major: 1, Minor: 1, Patch: 0, Label: label("dev")}, false},
		{"minor", Version{Major: 0, Minor: 2, Patch: 0, Label: label("dev")}, false},
		{"patch", Version{Major: 0, Minor: 1, Patch: 1, Label: label("dev")}, false},
		{"label", Version{Major: 0, Minor: 1, Patch: 0, Label: label("rc1")}, false},
		{"no label", Version{Major: 0, Minor: 1, Patch: 0}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.equal, Current.Equal(tc.other))
		})
	}
}

func TestVersionJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Version{Major: 1, Minor: 0, Patch: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"major":1,"minor":0,"patch":2,"label":null}`, string(data))

	var v Version
	require.NoError(t, json.Unmarshal([]byte(`{"major":0,"minor":1,"patch":0,"label":"dev"}`), &v))
	assert.True(t, Current.Equal(v))
}

func TestContextFallbacks(t *testing.T) {
	t.Parallel()

	var c *Context
	assert.Equal(t, Current.String(), c.GetVersion())
	assert.Equal(t, UnknownValue, c.GetBuildDate())

	c = &Context{Version: "v0.1.0", BuildDate: "2024-01-01"}
	assert.Equal(t, "v0.1.0", c.GetVersion())
	assert.Equal(t, "2024-01-01", c.GetBuildDate())
}
