package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	var config struct {
		Gather  Duration `json:"gather_timeout"`
		Connect Duration `json:"connect_timeout"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"gather_timeout": "10s", "connect_timeout": 2.5}`), &config))
	assert.Equal(t, 10*time.Second, config.Gather.Std())
	assert.Equal(t, 2500*time.Millisecond, config.Connect.Std())

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"ten seconds"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDurationMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(data))
}
