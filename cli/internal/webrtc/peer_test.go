package webrtc

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/config"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/media"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/negotiation"
)

func newTestPeer(t *testing.T, audio, video bool) *Peer {
	t.Helper()
	local, err := media.NewSynthetic(audio, video).Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	p, err := NewPeer(&config.Config{}, local, negotiation.PeerHooks{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func iceUfrag(sdp string) string {
	for _, line := range strings.Split(sdp, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "a=ice-ufrag:") {
			return strings.TrimPrefix(line, "a=ice-ufrag:")
		}
	}
	return ""
}

func TestPeer_OfferAnswerRound(t *testing.T) {
	offerer := newTestPeer(t, true, true)
	answerer := newTestPeer(t, true, true)

	offer, err := offerer.CreateOffer(false)
	require.NoError(t, err)
	assert.Contains(t, offer, "m=audio")
	assert.Contains(t, offer, "m=video")

	answer, err := answerer.Answer(offer)
	require.NoError(t, err)
	assert.Contains(t, answer, "m=audio")
	assert.Contains(t, answer, "m=video")

	require.NoError(t, offerer.SetAnswer(answer))
}

func TestPeer_AudioOnlyStillReceivesVideo(t *testing.T) {
	p := newTestPeer(t, true, false)

	offer, err := p.CreateOffer(false)
	require.NoError(t, err)
	assert.Contains(t, offer, "m=video")
	assert.Contains(t, offer, "a=recvonly")
}

func TestPeer_ICERestartChangesCredentials(t *testing.T) {
	offerer := newTestPeer(t, true, true)
	answerer := newTestPeer(t, true, true)

	offer, err := offerer.CreateOffer(false)
	require.NoError(t, err)
	answer, err := answerer.Answer(offer)
	require.NoError(t, err)
	require.NoError(t, offerer.SetAnswer(answer))

	restart, err := offerer.CreateOffer(true)
	require.NoError(t, err)
	require.NotEmpty(t, iceUfrag(offer))
	assert.NotEqual(t, iceUfrag(offer), iceUfrag(restart))

	// The restart is answered on the same connection.
	answer, err = answerer.Answer(restart)
	require.NoError(t, err)
	require.NoError(t, offerer.SetAnswer(answer))
}

func TestPeer_RejectsGarbage(t *testing.T) {
	p := newTestPeer(t, true, true)

	_, err := p.Answer("not sdp")
	assert.Error(t, err)
	assert.Error(t, p.SetAnswer("not sdp"))
}
