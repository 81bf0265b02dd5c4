package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobStatus string

func TestEncodeParams_Scalars(t *testing.T) {
	values, err := encodeParams(map[string]any{
		"status": jobStatus("running"),
		"size":   json.Number("1.5"),
		"limit":  uint16(7),
		"gpus":   int64(-1),
		"public": false,
		"skip":   nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "running", values.Get("status"))
	assert.Equal(t, "1.5", values.Get("size"))
	assert.Equal(t, "7", values.Get("limit"))
	assert.Equal(t, "-1", values.Get("gpus"))
	assert.Equal(t, "false", values.Get("public"))
	assert.NotContains(t, values, "skip")
}

func TestEncodeParams_RejectsStructs(t *testing.T) {
	for name, v := range map[string]any{
		"stringer struct": time.Now(),
		"pointer":         new(string),
		"slice":           []string{"a"},
	} {
		_, err := encodeParams(map[string]any{"v": v})
		var specErr *SpecificationError
		assert.ErrorAs(t, err, &specErr, name)
	}
}
