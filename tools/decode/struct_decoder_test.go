package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Channel    string   `json:"channel"`
	Ts         int64    `json:"ts"`
	Limit      int      `json:"limit"`
	MessageIDs []string `json:"messageIds"`
}

type nestedPayload struct {
	Items []struct {
		ID string `json:"id"`
		Ts int64  `json:"ts"`
	} `json:"items"`
}

func TestDecodeMapWeakTyping(t *testing.T) {
	// JSON numbers arrive as float64 and sometimes as strings.
	m := map[string]any{
		"channel":    "u2",
		"ts":         float64(1700000000000),
		"limit":      "25",
		"messageIds": []any{"a", "b"},
	}

	out, err := DecodeMap[samplePayload](m)
	require.NoError(t, err)
	assert.Equal(t, "u2", out.Channel)
	assert.Equal(t, int64(1700000000000), out.Ts)
	assert.Equal(t, 25, out.Limit)
	assert.Equal(t, []string{"a", "b"}, out.MessageIDs)
}

func TestDecodeMapStructSlicesSurviveTheStringHook(t *testing.T) {
	m := map[string]any{
		"items": []any{
			map[string]any{"id": "m1", "ts": float64(100)},
			map[string]any{"id": "m2", "ts": float64(200)},
		},
	}

	out, err := DecodeMap[nestedPayload](m)
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "m1", out.Items[0].ID)
	assert.Equal(t, int64(200), out.Items[1].Ts)
}

func TestDecodeMapNilPayload(t *testing.T) {
	_, err := DecodeMap[samplePayload](nil)
	assert.Error(t, err)
}

func TestReadHelpers(t *testing.T) {
	m := map[string]any{"name": "u1", "ts": float64(42), "tsStr": "43"}

	name, err := ReadString(m, "name")
	require.NoError(t, err)
	assert.Equal(t, "u1", name)
	_, err = ReadString(m, "missing")
	assert.Error(t, err)

	ts, err := ReadInt64(m, "ts")
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)
	ts, err = ReadInt64(m, "tsStr")
	require.NoError(t, err)
	assert.Equal(t, int64(43), ts)
}
