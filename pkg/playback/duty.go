package playback

// DutySink is a PWM output whose duty cycle approximates an analog waveform.
// Writes are assumed to succeed.
type DutySink interface {
	// SetDuty sets the duty cycle, between 0 and MaxDuty.
	SetDuty(duty uint16)
	// MaxDuty returns the duty value of a fully high output.
	MaxDuty() uint16
}

// SampleToDuty maps a signed 16 bit sample onto 0..maxDuty with the affine
// map (sample + 32768) * maxDuty / 65535, rounding toward zero.
func SampleToDuty(sample int16, maxDuty uint16) uint16 {
	return uint16(uint32(int32(sample)+32768) * uint32(maxDuty) / 65535)
}

// DutyToSample maps a duty value back onto the signed 16 bit range. It is the
// inverse of SampleToDuty up to the quantization of maxDuty.
func DutyToSample(duty, maxDuty uint16) int16 {
	if maxDuty == 0 {
		return 0
	}
	if duty > maxDuty {
		duty = maxDuty
	}
	return int16(int32(uint32(duty)*65535/uint32(maxDuty)) - 32768)
}

// RemainingWait returns how long to wait after a sample that took elapsed
// microseconds so the next sample starts one period after this one. Overruns
// return 0: late samples are not made up for.
func RemainingWait(period, elapsed uint64) uint64 {
	if elapsed >= period {
		return 0
	}
	return period - elapsed
}
