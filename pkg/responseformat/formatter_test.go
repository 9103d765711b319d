package responseformat

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string    `json:"name"`
	Count int       `json:"count"`
	Vals  []float64 `json:"vals"`
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)

	f, err = ParseFormat("msgpack")
	require.NoError(t, err)
	assert.Equal(t, MsgPack, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestEncoderStreams(t *testing.T) {
	f := NewFormatter()
	in := []payload{{"a", 1, []float64{1.5}}, {"b", 2, nil}}

	for _, format := range []Format{JSON, MsgPack} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			enc := f.NewEncoder(&buf, format)
			for _, p := range in {
				require.NoError(t, enc.Encode(p))
			}

			dec := f.NewDecoder(&buf, format)
			for _, want := range in {
				var got payload
				require.NoError(t, dec.Decode(&got))
				assert.Equal(t, want.Name, got.Name)
				assert.Equal(t, want.Count, got.Count)
				assert.Len(t, got.Vals, len(want.Vals))
			}
		})
	}
}

func TestMsgPackUsesJSONTags(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter().NewEncoder(&buf, MsgPack).Encode(payload{Name: "x"}))

	var m map[string]any
	require.NoError(t, NewFormatter().NewDecoder(&buf, MsgPack).Decode(&m))
	assert.Contains(t, m, "name")
	assert.NotContains(t, m, "Name")
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	require.NoError(t, f.WriteResponse(rec, req, payload{Name: "x"}, map[string]string{"Cache-Control": "no-cache"}))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `"name":"x"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/status?format=msgpack", nil)
	require.NoError(t, f.WriteResponse(rec, req, payload{Name: "x"}, nil))
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))
}
