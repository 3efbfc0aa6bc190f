package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QChat/tools/decode"
)

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"event":"new-message","data":{"channel":"u2","ts":100}}`))
	require.NoError(t, err)
	assert.Equal(t, EventNewMessage, frame.Event)

	req, err := decode.DecodeMap[SendRequest](frame.Data)
	require.NoError(t, err)
	assert.Equal(t, "u2", req.Channel)
	assert.Equal(t, int64(100), req.Ts)
}

func TestParseFrameRejectsMissingEvent(t *testing.T) {
	_, err := ParseFrame([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = ParseFrame([]byte(`garbage`))
	assert.Error(t, err)
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	raw, err := EncodeFrame(EventNewMessageAck, &SendAck{Success: true, ID: "m1"})
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, EventNewMessageAck, frame.Event)

	ack, err := decode.DecodeMap[SendAck](frame.Data)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "m1", ack.ID)
}
