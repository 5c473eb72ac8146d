package media

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a minimal Opus frame decoding to silence. Sent as a
// placeholder so a link always carries a sendable audio track even before
// real capture is wired in.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceFrameInterval = 20 * time.Millisecond

// NewSilentAudio creates an Opus audio track that plays silence until
// stopped. Returns the capture handle and its release func.
func NewSilentAudio() (*Capture, func(), error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "huddle-mic",
	)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(silenceFrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// Errors here mean no link is consuming the track yet.
				track.WriteSample(media.Sample{Data: opusSilence, Duration: silenceFrameInterval})
			}
		}
	}()

	stop := func() { close(done) }
	return &Capture{Audio: track}, stop, nil
}
