package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// Engine owns the audio devices: a malgo capture device feeding the
// CaptureProcessor and an oto player pulling from the playback Scheduler.
type Engine struct {
	captureRate  int
	playbackRate int
	frameSamples int

	malgoCtx *malgo.AllocatedContext
	capture  *malgo.Device
	otoCtx   *oto.Context
	player   *oto.Player
}

// NewEngine creates an engine for the given device rates.
func NewEngine(captureRate, playbackRate, frameSamples int) *Engine {
	return &Engine{
		captureRate:  captureRate,
		playbackRate: playbackRate,
		frameSamples: frameSamples,
	}
}

// Start acquires the microphone and the output device. A capture failure is
// returned to the caller and is fatal to the session.
func (e *Engine) Start(proc *CaptureProcessor, sched *Scheduler) error {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio: init context: %w", err)
	}
	e.malgoCtx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(e.captureRate)
	deviceConfig.PeriodSizeInFrames = uint32(e.frameSamples)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			// Device callback: synchronous, bounded, never blocks.
			samples := f32FromBytes(input, int(frameCount))
			_ = proc.ProcessFrame(samples)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		e.teardownContext()
		return fmt.Errorf("audio: open microphone: %w", err)
	}
	e.capture = device
	if err := device.Start(); err != nil {
		device.Uninit()
		e.capture = nil
		e.teardownContext()
		return fmt.Errorf("audio: start microphone: %w", err)
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   e.playbackRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		e.Stop()
		return fmt.Errorf("audio: open playback: %w", err)
	}
	<-ready
	e.otoCtx = otoCtx
	e.player = otoCtx.NewPlayer(schedulerReader{sched})
	e.player.Play()
	return nil
}

// Stop releases the capture device and the playback sink.
func (e *Engine) Stop() {
	if e.player != nil {
		_ = e.player.Close()
		e.player = nil
	}
	if e.capture != nil {
		_ = e.capture.Stop()
		e.capture.Uninit()
		e.capture = nil
	}
	e.teardownContext()
}

func (e *Engine) teardownContext() {
	if e.malgoCtx != nil {
		_ = e.malgoCtx.Uninit()
		e.malgoCtx.Free()
		e.malgoCtx = nil
	}
}

type schedulerReader struct {
	sched *Scheduler
}

func (r schedulerReader) Read(p []byte) (int, error) {
	return r.sched.ReadPCM(p)
}

func f32FromBytes(raw []byte, frames int) []float32 {
	if frames*4 > len(raw) {
		frames = len(raw) / 4
	}
	out := make([]float32, frames)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
