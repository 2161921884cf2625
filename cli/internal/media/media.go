package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
)

const (
	audioFrameDuration = 20 * time.Millisecond
	videoFrameDuration = time.Second / 15
)

// Opus TOC byte plus payload for 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// A minimal VP8 key frame header.
var blankVideoFrame = []byte{0x31, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x02, 0x00, 0x02, 0x00}

// Synthetic is a media source without capture hardware. It produces silent
// Opus audio and blank VP8 video so a call can be negotiated and kept alive
// from a terminal. Only one Local may be held at a time, like a real device.
type Synthetic struct {
	Audio bool
	Video bool

	mu    sync.Mutex
	inUse bool
}

func NewSynthetic(audio, video bool) *Synthetic {
	return &Synthetic{Audio: audio, Video: video}
}

// Acquire opens the local tracks.
func (s *Synthetic) Acquire(ctx context.Context) (*Local, error) {
	if err := ctx.Err(); err != nil {
		return nil, callerr.Wrap("acquire media", callerr.ErrMediaAcquisitionDenied, err.Error())
	}
	if !s.Audio && !s.Video {
		return nil, callerr.New("acquire media", callerr.ErrMediaDeviceUnavailable)
	}

	s.mu.Lock()
	if s.inUse {
		s.mu.Unlock()
		return nil, callerr.New("acquire media", callerr.ErrMediaDeviceBusy)
	}
	s.inUse = true
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		s.inUse = false
		s.mu.Unlock()
	}

	streamID := "axivid-" + uuid.NewString()
	l := &Local{release: release}

	if s.Audio {
		track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
			MimeType:  pion.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}, "audio", streamID)
		if err != nil {
			release()
			return nil, callerr.Wrap("acquire media", callerr.ErrMediaDeviceUnavailable, err.Error())
		}
		l.audio = track
		l.audioOn.Store(true)
	}
	if s.Video {
		track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
			MimeType:  pion.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", streamID)
		if err != nil {
			release()
			return nil, callerr.Wrap("acquire media", callerr.ErrMediaDeviceUnavailable, err.Error())
		}
		l.video = track
		l.videoOn.Store(true)
	}

	l.start()
	return l, nil
}

// Local is a set of acquired local tracks.
type Local struct {
	audio *pion.TrackLocalStaticSample
	video *pion.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	release   func()
}

// Tracks returns the tracks to attach to a peer connection.
func (l *Local) Tracks() []pion.TrackLocal {
	var tracks []pion.TrackLocal
	if l.audio != nil {
		tracks = append(tracks, l.audio)
	}
	if l.video != nil {
		tracks = append(tracks, l.video)
	}
	return tracks
}

func (l *Local) HasAudio() bool { return l.audio != nil }
func (l *Local) HasVideo() bool { return l.video != nil }

func (l *Local) AudioEnabled() bool { return l.audio != nil && l.audioOn.Load() }
func (l *Local) VideoEnabled() bool { return l.video != nil && l.videoOn.Load() }

// SetAudioEnabled mutes or unmutes. A muted track sends no samples.
func (l *Local) SetAudioEnabled(on bool) { l.audioOn.Store(on) }

func (l *Local) SetVideoEnabled(on bool) { l.videoOn.Store(on) }

// Close stops sample generation and frees the source for the next call.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		if l.stop != nil {
			close(l.stop)
		}
		l.wg.Wait()
		l.release()
	})
	return nil
}

func (l *Local) start() {
	l.stop = make(chan struct{})
	if l.audio != nil {
		l.wg.Add(1)
		go l.pump(l.audio, &l.audioOn, opusSilence, audioFrameDuration)
	}
	if l.video != nil {
		l.wg.Add(1)
		go l.pump(l.video, &l.videoOn, blankVideoFrame, videoFrameDuration)
	}
}

func (l *Local) pump(track *pion.TrackLocalStaticSample, enabled *atomic.Bool, frame []byte, every time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if !enabled.Load() {
				continue
			}
			// Unbound tracks drop samples; errors only mean the peer is gone.
			_ = track.WriteSample(pionmedia.Sample{Data: frame, Duration: every})
		}
	}
}
