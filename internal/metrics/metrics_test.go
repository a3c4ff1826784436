package metrics

import (
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAudioChunk(t *testing.T) {
	is := is.New(t)
	m := New(prometheus.NewRegistry())

	m.RecordAudioChunk(3200, true)
	m.RecordAudioChunk(3200, true)
	m.RecordAudioChunk(3200, false)

	is.Equal(testutil.ToFloat64(m.AudioChunksSent), 2.0)
	is.Equal(testutil.ToFloat64(m.AudioChunksDropped), 1.0)
	is.Equal(testutil.ToFloat64(m.AudioBytesSent), 6400.0)
}

func TestRecordEnvelope(t *testing.T) {
	is := is.New(t)
	m := New(prometheus.NewRegistry())

	m.RecordEnvelope("transcript")
	m.RecordEnvelope("")

	is.Equal(testutil.ToFloat64(m.EnvelopesReceived.WithLabelValues("transcript")), 1.0)
	is.Equal(testutil.ToFloat64(m.EnvelopesMalformed), 1.0)
}

func TestRecordSideEffect(t *testing.T) {
	is := is.New(t)
	m := New(prometheus.NewRegistry())

	m.RecordSideEffect("email", nil)
	m.RecordSideEffect("email", errors.New("smtp down"))

	is.Equal(testutil.ToFloat64(m.SideEffects.WithLabelValues("email", "ok")), 1.0)
	is.Equal(testutil.ToFloat64(m.SideEffects.WithLabelValues("email", "error")), 1.0)
}
