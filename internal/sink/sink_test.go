package sink

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/audioengine/internal/engineerr"
	"github.com/friendsincode/audioengine/internal/model"
)

type fakeStream struct {
	openCount  int
	closeCount int
	failOpen   bool
}

func (f *fakeStream) Open(spec model.StreamSpec, format SampleFormat) error {
	f.openCount++
	if f.failOpen {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeStream) Close() error {
	f.closeCount++
	return nil
}

func newTestSink() (*Sink, *fakeStream) {
	fs := &fakeStream{}
	return New(zerolog.Nop(), fs), fs
}

func TestPrepareTransitionsToPrepared(t *testing.T) {
	s, _ := newTestSink()
	if err := s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 2}, FormatF32, 500); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if s.State() != Prepared {
		t.Fatalf("state = %v, want Prepared", s.State())
	}
}

func TestWriteThenDeviceCallbackRoundTrips(t *testing.T) {
	s, _ := newTestSink()
	s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 2}, FormatF32, 500)

	block := model.AudioBlock{Channels: 2, Samples: []float32{0.1, 0.2, 0.3, 0.4}}
	ok, err := s.Write(block, &model.PipelineContext{})
	if err != nil || !ok {
		t.Fatalf("write: ok=%v err=%v", ok, err)
	}

	dst := make([]float32, 4)
	s.DeviceCallback(dst)
	if dst[0] != 0.1 || dst[3] != 0.4 {
		t.Fatalf("unexpected callback contents: %v", dst)
	}
	if s.MetricsSnapshot().UnderrunCallbacks != 0 {
		t.Fatal("did not expect underrun when ring had enough samples")
	}
}

func TestDeviceCallbackZeroFillsAndCountsUnderrun(t *testing.T) {
	s, _ := newTestSink()
	s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 1}, FormatF32, 500)

	dst := make([]float32, 4)
	s.DeviceCallback(dst)
	for _, v := range dst {
		if v != 0 {
			t.Fatalf("expected zero-fill, got %v", dst)
		}
	}
	if s.MetricsSnapshot().UnderrunCallbacks != 1 {
		t.Fatalf("expected one underrun, got %d", s.MetricsSnapshot().UnderrunCallbacks)
	}
}

// written + dropped + still-in-ring must equal frames_accepted * channels
// (§8 invariant).
func TestWrittenDroppedRingInvariant(t *testing.T) {
	s, _ := newTestSink()
	s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 1}, FormatF32, 1) // tiny ring
	small := s.buf.Capacity()

	block := model.AudioBlock{Channels: 1, Samples: make([]float32, small*3)}
	for i := range block.Samples {
		block.Samples[i] = 1
	}
	s.Write(block, &model.PipelineContext{})

	metrics := s.MetricsSnapshot()
	total := metrics.WrittenSamples + metrics.DroppedSamples + uint64(s.buf.OccupiedLen())
	if total != uint64(len(block.Samples)) {
		t.Fatalf("written(%d)+dropped(%d)+inring(%d) = %d, want %d",
			metrics.WrittenSamples, metrics.DroppedSamples, s.buf.OccupiedLen(), total, len(block.Samples))
	}
}

func TestSyncRuntimeControlRebuildsOnDeviceChange(t *testing.T) {
	s, fs := newTestSink()
	s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 2}, FormatF32, 500)
	s.SetDesiredDevice("device-2")

	if err := s.SyncRuntimeControl(&model.PipelineContext{}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if fs.openCount != 2 {
		t.Fatalf("expected a second open on reconfigure, got %d opens", fs.openCount)
	}
	m := s.MetricsSnapshot()
	if m.ReconfigureAttempt != 1 || m.ReconfigureSuccess != 1 {
		t.Fatalf("reconfigure metrics = %+v", m)
	}
}

func TestSyncRuntimeControlSurfacesSinkDisconnectedOnCallbackError(t *testing.T) {
	s, _ := newTestSink()
	s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 2}, FormatF32, 500)
	s.NoteCallbackError(errors.New("stream vanished"))

	err := s.SyncRuntimeControl(&model.PipelineContext{})
	if !engineerr.Is(err, engineerr.SinkDisconnected) {
		t.Fatalf("expected SinkDisconnected, got %v", err)
	}
}

func TestConvertSampleClampsAndScales(t *testing.T) {
	if got := ConvertSample(2.0, FormatI16); got.(int16) != 32767 {
		t.Fatalf("clamped i16 = %v, want 32767", got)
	}
	if got := ConvertSample(-2.0, FormatI16); got.(int16) != -32767 {
		t.Fatalf("clamped negative i16 = %v, want -32767", got)
	}
	if got := ConvertSample(-1.0, FormatU16); got.(uint16) != 0 {
		t.Fatalf("u16 floor = %v, want 0", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestSink()
	s.Prepare(model.StreamSpec{SampleRate: 44100, Channels: 2}, FormatF32, 500)
	if err := s.Stop(&model.PipelineContext{}); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.Stop(&model.PipelineContext{}); err != nil {
		t.Fatalf("second stop should be a no-op, got: %v", err)
	}
}
