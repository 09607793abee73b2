package ice_test

import (
	"sync"
	"testing"
	"time"

	"github.com/cloudwebrtc/go-media-session/pkg/ice"
	"github.com/cloudwebrtc/go-media-session/pkg/media"
	"github.com/ghettovoice/gosip/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentFactoryStunServers(t *testing.T) {
	loop := ice.NewEventLoop()
	defer loop.Close()
	logger := log.NewDefaultLogrusLogger()

	f, err := ice.NewAgentFactory(&ice.Config{
		StunServers: []string{"stun:stun.l.google.com:19302"},
		PortMin:     30000,
		PortMax:     30100,
	}, loop, logger)
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = ice.NewAgentFactory(&ice.Config{StunServers: []string{"http://example.com"}}, loop, logger)
	assert.Error(t, err)
}

type testStream struct {
	agent    ice.Agent
	id       ice.StreamID
	gathered chan struct{}
	states   chan ice.State
	received chan []byte
}

func newTestStream(t *testing.T, f ice.AgentFactory) *testStream {
	agent, err := f.NewAgent()
	require.NoError(t, err)
	id, err := agent.AddStream()
	require.NoError(t, err)

	s := &testStream{
		agent:    agent,
		id:       id,
		gathered: make(chan struct{}),
		states:   make(chan ice.State, 32),
		received: make(chan []byte, 8),
	}
	var once sync.Once
	agent.OnGatheringDone(func(stream ice.StreamID) {
		if stream == id {
			once.Do(func() { close(s.gathered) })
		}
	})
	agent.OnComponentStateChanged(func(stream ice.StreamID, component ice.ComponentID, state ice.State) {
		assert.Equal(t, ice.ComponentRTP, component)
		select {
		case s.states <- state:
		default:
		}
	})
	require.NoError(t, agent.AttachReceive(id, ice.ComponentRTP, func(data []byte) {
		s.received <- append([]byte(nil), data...)
	}))
	require.NoError(t, agent.GatherCandidates(id))
	return s
}

func (s *testStream) waitGathered(t *testing.T) []media.IceCandidate {
	select {
	case <-s.gathered:
	case <-time.After(10 * time.Second):
		t.Fatal("gathering not done")
	}
	candidates := s.agent.LocalCandidates(s.id)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		assert.NotEmpty(t, c.Username)
		assert.NotEmpty(t, c.Password)
		assert.Equal(t, uint32(s.id), c.StreamID)
	}
	return candidates
}

func (s *testStream) waitState(t *testing.T, want ice.State) {
	deadline := time.After(15 * time.Second)
	for {
		select {
		case state := <-s.states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("stream %d never reached %s", s.id, want)
		}
	}
}

func (s *testStream) connectTo(t *testing.T, remote []media.IceCandidate, controlling bool) {
	s.agent.SetControllingMode(controlling)
	require.NoError(t, s.agent.SetRemoteCredentials(s.id, remote[0].Username, remote[0].Password))
	require.NoError(t, s.agent.SetRemoteCandidates(s.id, ice.ComponentRTP, remote))
}

func newLoopbackFactory(t *testing.T, loop *ice.EventLoop) ice.AgentFactory {
	f, err := ice.NewAgentFactory(&ice.Config{IncludeLoopback: true}, loop, log.NewDefaultLogrusLogger())
	require.NoError(t, err)
	return f
}

func TestPionAgentLoopback(t *testing.T) {
	loop := ice.NewEventLoop()
	defer loop.Close()
	f := newLoopbackFactory(t, loop)

	offerer := newTestStream(t, f)
	defer offerer.agent.Close()
	answerer := newTestStream(t, f)
	defer answerer.agent.Close()

	offerCandidates := offerer.waitGathered(t)
	answerCandidates := answerer.waitGathered(t)

	_, ok := offerer.agent.Conn(offerer.id)
	assert.False(t, ok, "no socket before connectivity")

	answerer.connectTo(t, offerCandidates, false)
	offerer.connectTo(t, answerCandidates, true)

	offerer.waitState(t, ice.StateConnected)
	answerer.waitState(t, ice.StateConnected)

	offerConn, ok := offerer.agent.Conn(offerer.id)
	require.True(t, ok)
	answerConn, ok := answerer.agent.Conn(answerer.id)
	require.True(t, ok)

	read := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 1500)
		n, err := answerConn.Read(buf)
		if err == nil {
			read <- buf[:n]
		}
	}()

	_, err := offerConn.Write([]byte("ping"))
	require.NoError(t, err)
	select {
	case data := <-read:
		assert.Equal(t, "ping", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("nothing read over the ice socket")
	}
	select {
	case data := <-answerer.received:
		assert.Equal(t, "ping", string(data))
	case <-time.After(time.Second):
		t.Fatal("receive callback not called")
	}
}

func TestPionAgentCloseCancelsConnect(t *testing.T) {
	loop := ice.NewEventLoop()
	defer loop.Close()
	f := newLoopbackFactory(t, loop)

	s := newTestStream(t, f)
	s.waitGathered(t)

	unreachable := []media.IceCandidate{{
		Foundation:  "1",
		ComponentID: 1,
		Transport:   "udp",
		Priority:    2130706431,
		Address:     "192.0.2.1",
		Port:        9,
		Kind:        media.CandidateHost,
		Username:    "remoteufrag",
		Password:    "remotepasswordremotepassword",
	}}
	s.connectTo(t, unreachable, true)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, s.agent.Close())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close blocked by the connectivity checks")
	}

	s.waitState(t, ice.StateFailed)
	_, ok := s.agent.Conn(s.id)
	assert.False(t, ok)
	assert.NoError(t, s.agent.Close())
}

func TestPionAgentErrors(t *testing.T) {
	loop := ice.NewEventLoop()
	defer loop.Close()
	f := newLoopbackFactory(t, loop)

	agent, err := f.NewAgent()
	require.NoError(t, err)
	defer agent.Close()
	id, err := agent.AddStream()
	require.NoError(t, err)

	assert.ErrorIs(t, agent.GatherCandidates(id+1), ice.ErrUnknownStream)
	assert.ErrorIs(t, agent.SetRemoteCredentials(id+1, "u", "p"), ice.ErrUnknownStream)
	assert.ErrorIs(t, agent.SetRemoteCandidates(id, ice.ComponentRTP, nil), ice.ErrNoCredentials)
	assert.Error(t, agent.AttachReceive(id, ice.ComponentRTP+1, func([]byte) {}))
	assert.Nil(t, agent.LocalCandidates(id+1))
}
