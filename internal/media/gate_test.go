package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func newAudioTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	return track
}

func newVideoTrack(t *testing.T) webrtc.TrackLocal {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	return track
}

func TestGateStartsEmpty(t *testing.T) {
	g := NewGate()
	if g.Current() != nil {
		t.Error("fresh gate should have no capture handle")
	}
}

func TestGateNotifiesOnChange(t *testing.T) {
	g := NewGate()

	var got []*Capture
	g.OnChange(func(c *Capture) { got = append(got, c) })

	cap1 := &Capture{Audio: newAudioTrack(t)}
	g.Set(cap1, nil)
	g.Clear()

	if len(got) != 2 || got[0] != cap1 || got[1] != nil {
		t.Errorf("unexpected notifications: %v", got)
	}
	if g.Current() != nil {
		t.Error("Clear should drop the handle")
	}
}

func TestGateReleasesReplacedHandle(t *testing.T) {
	g := NewGate()

	released := false
	g.Set(&Capture{Audio: newAudioTrack(t)}, func() { released = true })
	g.Set(&Capture{Audio: newAudioTrack(t)}, nil)

	if !released {
		t.Error("replacing a handle must release the previous one")
	}
}

func TestCaptureKinds(t *testing.T) {
	var c *Capture
	if a, v := c.Kinds(); a || v {
		t.Error("nil capture should have no kinds")
	}
	if c.HasVideo() {
		t.Error("nil capture cannot have video")
	}

	c = &Capture{Audio: newAudioTrack(t), Video: newVideoTrack(t)}
	if a, v := c.Kinds(); !a || !v {
		t.Error("expected both kinds")
	}
	if len(c.Tracks()) != 2 {
		t.Errorf("expected 2 tracks, got %d", len(c.Tracks()))
	}
}
