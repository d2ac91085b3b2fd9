package apu

import "testing"

func newTestAPU() *APU {
	return New(func(addr uint16) uint8 { return 0 })
}

// playPulse1 programs pulse 1 with a constant-volume audible tone.
func playPulse1(a *APU) {
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4000, 0x3F) // duty 0, halt, constant volume 15
	a.WriteRegister(0x4002, 0xFD) // period 253
	a.WriteRegister(0x4003, 0x00)
}

func TestPulseProducesOutput(t *testing.T) {
	a := newTestAPU()
	playPulse1(a)

	a.Clock(ClockRate / 100)
	var nonZero bool
	for _, s := range a.ConsumeSamples() {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("pulse 1 produced only silence")
	}
}

func TestMutedChannelExcludedFromMix(t *testing.T) {
	a := newTestAPU()
	playPulse1(a)
	a.pulse1.Mute()

	// settle the filters past any transient
	a.Clock(ClockRate / 100)
	a.ConsumeSamples()
	a.Clock(ClockRate / 100)

	for _, s := range a.ConsumeSamples() {
		if s > 50 || s < -50 {
			t.Fatalf("muted channel leaked sample %d", s)
		}
	}
}

func TestSampleRateControlsOutputCount(t *testing.T) {
	a := newTestAPU()
	a.SetSampleRate(48000)

	a.Clock(ClockRate / 10)
	got := a.SamplesQueued()
	want := 48000 / 10
	if got < want-2 || got > want+2 {
		t.Errorf("SamplesQueued() = %d, want ~%d", got, want)
	}
}

func TestStatusRegisterTracksLengthCounters(t *testing.T) {
	a := newTestAPU()

	if got := a.ReadRegister(0x4015); got != 0 {
		t.Errorf("status = %#x at power-on", got)
	}

	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4000, 0x30)
	a.WriteRegister(0x4003, 0x08) // loads a length counter
	if got := a.ReadRegister(0x4015); got&0x01 == 0 {
		t.Error("pulse 1 length counter not reflected in status")
	}

	// disabling the channel clears its counter
	a.WriteRegister(0x4015, 0x00)
	if got := a.ReadRegister(0x4015); got&0x01 != 0 {
		t.Error("pulse 1 still flagged after disable")
	}
}

func TestLengthCounterExpires(t *testing.T) {
	a := newTestAPU()
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4000, 0x10) // no halt, constant volume
	a.WriteRegister(0x4002, 0xFD)
	a.WriteRegister(0x4003, 0x18) // loads length 2

	// two half-frame clocks happen within one sequencer period
	a.Clock(30000)
	if got := a.ReadRegister(0x4015); got&0x01 != 0 {
		t.Error("length counter never expired")
	}
}

func TestTriangleUltrasonicGuard(t *testing.T) {
	a := newTestAPU()
	a.WriteRegister(0x4015, 0x04)
	a.WriteRegister(0x4008, 0xFF)
	a.WriteRegister(0x400A, 0x01) // period 1, ultrasonic
	a.WriteRegister(0x400B, 0x00)

	// run past several quarter frames so the linear counter reloads
	a.Clock(30000)
	if a.triangle.output != 0 {
		t.Errorf("triangle output = %d at ultrasonic period, want held at 0", a.triangle.output)
	}
}

func TestFiveStepModeClocksImmediately(t *testing.T) {
	a := newTestAPU()
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4000, 0x10)
	a.WriteRegister(0x4003, 0x08)

	counterBefore := a.pulse1.env.length.counter
	a.WriteRegister(0x4017, 0x80)
	if a.pulse1.env.length.counter != counterBefore-1 {
		t.Error("writing five-step mode did not clock the length counter")
	}
}

func TestChannelsStableOrder(t *testing.T) {
	a := newTestAPU()
	want := []string{"Pulse 1", "Pulse 2", "Triangle", "Noise", "DMC"}
	channels := a.Channels()
	if len(channels) != len(want) {
		t.Fatalf("len(Channels()) = %d, want %d", len(channels), len(want))
	}
	for i, c := range channels {
		if c.Name() != want[i] {
			t.Errorf("channel %d = %q, want %q", i, c.Name(), want[i])
		}
	}
}

func TestApplySettingsMutesByIdentity(t *testing.T) {
	a := newTestAPU()
	a.ApplySettings(map[ChannelID]ChannelSettings{
		{Chip: Chip2A03, Name: "Noise"}: {Muted: true},
	})

	if !a.noise.Muted() {
		t.Error("noise not muted")
	}
	if a.pulse1.Muted() {
		t.Error("pulse 1 muted unexpectedly")
	}
}

func TestRecordCurrentOutputFillsRingBuffers(t *testing.T) {
	a := newTestAPU()
	playPulse1(a)

	a.Clock(ClockRate / 100)
	c := a.Channels()[0]
	if c.SampleBuffer().Index() == 0 {
		t.Error("sample ring buffer cursor never advanced")
	}
	if c.SampleBuffer().Index() != c.EdgeBuffer().Index() {
		t.Error("sample and edge cursors diverged")
	}
}
