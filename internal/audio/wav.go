package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DumpWAV writes raw PCM16LE mono audio to dir as a timestamped WAV file.
// Used by the debug dump option to inspect what the capture path produced.
func DumpWAV(dir string, pcm []byte, sampleRate int) (string, error) {
	name := "capture-" + time.Now().UTC().Format("20060102-150405.000") + ".wav"
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := writeWAVPCM16LE(f, pcm, sampleRate); err != nil {
		return "", err
	}
	return path, nil
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWAVPCM16LE(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeWAVPCM16LE(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	write := func(vals ...any) error {
		for _, v := range vals {
			switch t := v.(type) {
			case string:
				if _, err := w.WriteString(t); err != nil {
					return err
				}
			default:
				if err := binary.Write(w, binary.LittleEndian, v); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := write(
		"RIFF", uint32(36)+dataSize, "WAVE",
		"fmt ", uint32(16), uint16(audioFormat), uint16(numChannels),
		uint32(sampleRate), byteRate, blockAlign, uint16(bitsPerSample),
		"data", dataSize,
	); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
