package audio

import (
	"math"
	"time"

	"github.com/faiface/beep"
)

const chimeGain = 0.3

// chime is two short decaying tones, a fifth apart.
func chime(sr beep.SampleRate) beep.Streamer {
	return beep.Seq(
		tone(sr, 880, 120*time.Millisecond, chimeGain),
		tone(sr, 1320, 180*time.Millisecond, chimeGain),
	)
}

// tone is a sine wave at freq that fades linearly to silence over d.
func tone(sr beep.SampleRate, freq float64, d time.Duration, gain float64) beep.Streamer {
	total := sr.N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				break
			}
			env := 1 - float64(pos)/float64(total)
			v := gain * env * math.Sin(2*math.Pi*freq*float64(pos)/float64(sr))
			samples[i][0], samples[i][1] = v, v
			pos++
			n++
		}
		return n, true
	})
}
