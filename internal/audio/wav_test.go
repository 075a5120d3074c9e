package audio

import (
	"encoding/binary"
	"os"
	"strings"
	"testing"
)

func TestEncodeWAVPCM16LE(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80}
	out, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(out) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(out), 44+len(pcm))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", out[0:4], out[8:12])
	}
	if rate := binary.LittleEndian.Uint32(out[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", rate)
	}
	if dataSize := binary.LittleEndian.Uint32(out[40:44]); dataSize != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", dataSize, len(pcm))
	}
	if string(out[44:]) != string(pcm) {
		t.Fatal("payload not preserved")
	}
}

func TestDumpWAV(t *testing.T) {
	dir := t.TempDir()
	path, err := DumpWAV(dir, []byte{0x01, 0x00}, 16000)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".wav") {
		t.Fatalf("unexpected path %q", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if len(raw) != 46 {
		t.Fatalf("file len = %d, want 46", len(raw))
	}
}
