package socket

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		data  any
		want  string
	}{
		{"nil data becomes empty object", "ping", nil, `{"event":"ping","data":{}}`},
		{"struct", "kepcoin-delete", struct {
			Username string `json:"username"`
		}{"x"}, `{"event":"kepcoin-delete","data":{"username":"x"}}`},
		{"scalar", "a", 1, `{"event":"a","data":1}`},
		{"raw message passes through", "duel-tick", json.RawMessage(`[1,2]`), `{"event":"duel-tick","data":[1,2]}`},
		{"empty raw message", "b", json.RawMessage(nil), `{"event":"b","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.event, tt.data)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestEncodeFrameErrors(t *testing.T) {
	_, err := EncodeFrame("", 1)
	assert.ErrorIs(t, err, ErrEmptyEvent)

	_, err = EncodeFrame("x", math.Inf(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"event":"kepcoin-delete","data":{"username":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, Event("kepcoin-delete"), f.Event)
	assert.JSONEq(t, `{"username":"x"}`, string(f.Data))

	f, err = DecodeFrame([]byte(`{"event":"notification"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(f.Data))

	f, err = DecodeFrame([]byte(`{"event":"notification","data":null}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(f.Data))
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	for _, payload := range []string{
		``,
		`not json`,
		`null`,
		`[]`,
		`"duel-tick"`,
		`{"data":{}}`,
		`{"event":""}`,
		`{"event":42,"data":{}}`,
	} {
		_, err := DecodeFrame([]byte(payload))
		assert.True(t, errors.Is(err, ErrInvalidMessage), "payload %q: %v", payload, err)
	}
}
