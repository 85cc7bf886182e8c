package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/chatrelay/internal/domain"
)

func TestWriterFramesAndDone(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteFrame(domain.StartFrame("m1", "s1")))
	require.NoError(t, w.WriteFrame(domain.TextDeltaFrame("hi")))
	require.NoError(t, w.WriteFrame(domain.ErrorFrame("boom")))
	require.NoError(t, w.WriteDone())

	want := `data: {"type":"start","messageId":"m1","messageMetadata":{"sessionId":"s1"}}` + "\n\n" +
		`data: {"type":"text-delta","id":"0","delta":"hi"}` + "\n\n" +
		`data: {"type":"error","errorText":"boom"}` + "\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, rec.Body.String())
	assert.True(t, rec.Flushed)
}

type plainWriter struct {
	http.ResponseWriter
}

func TestNewWriterRequiresFlusher(t *testing.T) {
	_, err := NewWriter(plainWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}
