package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/key"
)

func TestInMemoryGroupInfoStartsEmpty(t *testing.T) {
	h := NewInMemoryGroupInfo()
	require.True(t, h.Get().Empty())
}

func TestInMemoryGroupInfoUpdate(t *testing.T) {
	h := NewInMemoryGroupInfo()
	g := key.NewForming(1, 1, 3, 2)

	h.Update(func(s *key.LocalGroupState) *key.LocalGroupState {
		return &key.LocalGroupState{Group: g, SelfIndex: 0, DKGStatus: key.DKGStatusInPhase}
	})

	s := h.Get()
	require.False(t, s.Empty())
	require.Equal(t, g, s.Group)
	require.Equal(t, key.DKGStatusInPhase, s.DKGStatus)
}

func TestInMemoryGroupInfoUpdateSeesPriorState(t *testing.T) {
	h := NewInMemoryGroupInfo()
	h.Update(func(s *key.LocalGroupState) *key.LocalGroupState {
		return &key.LocalGroupState{DKGStatus: key.DKGStatusInPhase}
	})
	h.Update(func(s *key.LocalGroupState) *key.LocalGroupState {
		require.Equal(t, key.DKGStatusInPhase, s.DKGStatus)
		s.DKGStatus = key.DKGStatusCommitSuccess
		return s
	})

	require.Equal(t, key.DKGStatusCommitSuccess, h.Get().DKGStatus)
}
