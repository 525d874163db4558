package speech

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// ClipDuration decodes an MP3 clip far enough to measure its play time.
func ClipDuration(data []byte) (time.Duration, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decoding mp3: %w", err)
	}
	rate := dec.SampleRate()
	length := dec.Length()
	if rate <= 0 || length <= 0 {
		return 0, fmt.Errorf("decoding mp3: unknown length")
	}
	// Decoded output is 16-bit stereo: four bytes per sample frame.
	frames := length / 4
	return time.Duration(frames) * time.Second / time.Duration(rate), nil
}
