package encode

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-audio/wav"
)

func TestQuantize16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{name: "zero", input: 0, expected: 0},
		{name: "positive full scale", input: 1.0, expected: 32767},
		{name: "negative full scale", input: -1.0, expected: -32768},
		{name: "clamps above", input: 2.0, expected: 32767},
		{name: "clamps below", input: -2.0, expected: -32768},
		{name: "positive scales by 32767", input: 0.2, expected: 6553},
		{name: "negative scales by 32768", input: -0.5, expected: -16384},
		{name: "ties round away from zero", input: -1.52587890625e-05, expected: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quantize16(tt.input); got != tt.expected {
				t.Errorf("quantize16(%f) = %d, expected %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestWAVHeaderFields(t *testing.T) {
	enc := NewWAV(44100, 1, 16)
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = 0.1
	}
	if err := enc.Push([][]float32{samples}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if out.MIME != MIMEWAV {
		t.Errorf("Expected MIME %s, got %s", MIMEWAV, out.MIME)
	}

	b := out.Bytes
	if len(b) != 44+200 {
		t.Fatalf("Expected 244 bytes, got %d", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		t.Fatal("Chunk markers missing or misplaced")
	}
	if got := binary.LittleEndian.Uint32(b[4:8]); got != 236 {
		t.Errorf("Expected RIFF size 236 (36+dataSize), got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[16:20]); got != 16 {
		t.Errorf("Expected fmt chunk size 16, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[20:22]); got != 1 {
		t.Errorf("Expected audio format 1 (PCM), got %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[22:24]); got != 1 {
		t.Errorf("Expected 1 channel, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[28:32]); got != 88200 {
		t.Errorf("Expected byte rate 88200, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[32:34]); got != 2 {
		t.Errorf("Expected block align 2, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[34:36]); got != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[40:44]); got != 200 {
		t.Errorf("Expected data size 200 (2 bytes per sample), got %d", got)
	}
}

func TestWAVEmptyRecording(t *testing.T) {
	enc := NewWAV(44100, 1, 16)
	out, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if len(out.Bytes) != 44 {
		t.Errorf("Expected bare 44-byte header, got %d bytes", len(out.Bytes))
	}
	if got := binary.LittleEndian.Uint32(out.Bytes[4:8]); got != 36 {
		t.Errorf("Expected RIFF size 36 for empty data, got %d", got)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	enc := NewWAV(44100, 1, 16)
	chunk := make([]float32, 100)
	for i := range chunk {
		chunk[i] = 0.2
	}
	for n := 0; n < 3; n++ {
		if err := enc.Push([][]float32{chunk}); err != nil {
			t.Fatalf("Push %d failed: %v", n, err)
		}
	}

	out, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	decoder := wav.NewDecoder(bytes.NewReader(out.Bytes))
	if !decoder.IsValidFile() {
		t.Fatal("Decoder rejected the produced file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Decoding failed: %v", err)
	}

	if decoder.SampleRate != 44100 || decoder.NumChans != 1 || decoder.BitDepth != 16 {
		t.Errorf("Format not preserved: %dHz %dch %dbit",
			decoder.SampleRate, decoder.NumChans, decoder.BitDepth)
	}
	if len(buf.Data) != 300 {
		t.Fatalf("Expected 300 samples, got %d", len(buf.Data))
	}
	for i, s := range buf.Data {
		if s != 6553 { // round(0.2 * 32767)
			t.Fatalf("Sample %d: expected 6553, got %d", i, s)
		}
	}
}

func TestWAVInterleaving(t *testing.T) {
	enc := NewWAV(8000, 2, 16)
	left := []float32{0.25, 0.25, 0.25}
	right := []float32{-0.25, -0.25, -0.25}
	if err := enc.Push([][]float32{left, right}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	decoder := wav.NewDecoder(bytes.NewReader(out.Bytes))
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Decoding failed: %v", err)
	}
	if len(buf.Data) != 6 {
		t.Fatalf("Expected 6 interleaved samples, got %d", len(buf.Data))
	}
	for i := 0; i < len(buf.Data); i += 2 {
		if buf.Data[i] != 8192 { // round(0.25 * 32767)
			t.Errorf("Left sample %d: expected 8192, got %d", i/2, buf.Data[i])
		}
		if buf.Data[i+1] != -8192 { // -0.25 * 32768
			t.Errorf("Right sample %d: expected -8192, got %d", i/2, buf.Data[i+1])
		}
	}
}

func TestWAVFloat32Mode(t *testing.T) {
	enc := NewWAV(48000, 1, 32)
	// Float mode stores values unclamped.
	if err := enc.Push([][]float32{{1.5, -0.25}}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	b := out.Bytes
	if got := binary.LittleEndian.Uint16(b[20:22]); got != 3 {
		t.Errorf("Expected audio format 3 (IEEE float), got %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[34:36]); got != 32 {
		t.Errorf("Expected 32 bits per sample, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[28:32]); got != 192000 {
		t.Errorf("Expected byte rate 192000, got %d", got)
	}

	first := math.Float32frombits(binary.LittleEndian.Uint32(b[44:48]))
	second := math.Float32frombits(binary.LittleEndian.Uint32(b[48:52]))
	if first != 1.5 {
		t.Errorf("Expected unclamped 1.5, got %f", first)
	}
	if second != -0.25 {
		t.Errorf("Expected -0.25, got %f", second)
	}
}

func TestWAVDeterminism(t *testing.T) {
	render := func() []byte {
		enc := NewWAV(44100, 1, 16)
		enc.Push([][]float32{{0.1, -0.2, 0.3}})
		enc.Push([][]float32{{0.5}})
		out, err := enc.Finish()
		if err != nil {
			t.Fatalf("Finish failed: %v", err)
		}
		return out.Bytes
	}

	if !bytes.Equal(render(), render()) {
		t.Error("Identical input produced different WAV bytes")
	}
}

func TestFinishIsTerminal(t *testing.T) {
	enc := NewWAV(44100, 1, 16)
	if _, err := enc.Finish(); err != nil {
		t.Fatalf("First Finish failed: %v", err)
	}
	if _, err := enc.Finish(); err == nil {
		t.Error("Expected error from second Finish")
	}
	if err := enc.Push([][]float32{{0.1}}); err == nil {
		t.Error("Expected error from Push after Finish")
	}
}

func TestPushChannelMismatch(t *testing.T) {
	enc := NewWAV(44100, 2, 16)
	if err := enc.Push([][]float32{{0.1}}); err == nil {
		t.Error("Expected error for mono push into stereo encoder")
	}
}

func TestNewFactory(t *testing.T) {
	if _, err := New("wav", 44100, 1, 16); err != nil {
		t.Errorf("wav encoder failed: %v", err)
	}
	if _, err := New("flac", 44100, 1, 16); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestMP3Stream(t *testing.T) {
	enc, err := NewMP3(44100, 1)
	if err != nil {
		t.Fatalf("NewMP3 failed: %v", err)
	}

	// 100ms of a 440Hz tone.
	samples := make([]float32, 4410)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}
	if err := enc.Push([][]float32{samples}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if out.MIME != MIMEMP3 {
		t.Errorf("Expected MIME %s, got %s", MIMEMP3, out.MIME)
	}
	if len(out.Bytes) == 0 {
		t.Error("Expected non-empty MP3 stream after flush")
	}

	if _, err := enc.Finish(); err == nil {
		t.Error("Expected error from second Finish")
	}
}
