package key

import (
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/share"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/arpa-network/randcast-node/crypto"
)

// GroupState is the lifecycle state of a Group (spec.md §3).
type GroupState int

const (
	GroupForming GroupState = iota
	GroupReady
)

func (s GroupState) String() string {
	if s == GroupReady {
		return "ready"
	}
	return "forming"
}

// MemberInfo is one member's slot within a Group (spec.md §3).
type MemberInfo struct {
	// Index is this member's Shamir evaluation point within the group.
	Index int
	IDAddress ethcommon.Address
	RPCEndpoint string
	// DKGPublicKey is the member's long-term DKG keypair public half,
	// fetched from Controller.getNode at grouping time; the dkgphase
	// machine needs every member's long-term key to build the kyber
	// dkg.Config.NewNodes list and to verify packet signatures.
	DKGPublicKey kyber.Point
	// PartialPublicKey is nil until the group reaches GroupReady.
	PartialPublicKey kyber.Point
}

// Group is a grouping attempt at a fixed index; epoch strictly increases
// across successive groupings at that index (spec.md §3).
type Group struct {
	Index     uint32
	Epoch     uint32
	Size      int
	Threshold int
	State     GroupState
	// Commits is the DKG output's public polynomial coefficients; the
	// group public key is Commits[0]. Non-empty iff State == GroupReady.
	// Stored as the coefficient list (rather than a *share.PubPoly
	// directly) so it round-trips through persistence the same way
	// drand's key.DistPublic does (common/key/keys.go).
	Commits []kyber.Point
	// Members is keyed by id_address, ordered by MemberInfo.Index when
	// iterated via SortedMembers.
	Members map[ethcommon.Address]*MemberInfo
	// Committers is populated atomically with State transitioning to
	// GroupReady; always a subset of Members.
	Committers map[ethcommon.Address]struct{}
	// CoordinatorAddress is the per-grouping-attempt Coordinator contract
	// address, used by the dkgphase machine to post/read bulletin-board
	// entries for this group's DKG run.
	CoordinatorAddress ethcommon.Address
}

// NewForming builds an empty forming-state group for (index, epoch).
func NewForming(index, epoch uint32, size, threshold int) *Group {
	return &Group{
		Index:      index,
		Epoch:      epoch,
		Size:       size,
		Threshold:  threshold,
		State:      GroupForming,
		Members:    make(map[ethcommon.Address]*MemberInfo, size),
		Committers: make(map[ethcommon.Address]struct{}),
	}
}

// Validate checks the invariants from spec.md §3: threshold <= size,
// committers subset of members, public key present iff ready.
func (g *Group) Validate() error {
	if g.Threshold > g.Size {
		return fmt.Errorf("group %d/%d: threshold %d exceeds size %d", g.Index, g.Epoch, g.Threshold, g.Size)
	}
	if g.State == GroupReady && len(g.Commits) == 0 {
		return fmt.Errorf("group %d/%d: ready but no public key", g.Index, g.Epoch)
	}
	if g.State == GroupForming && len(g.Commits) != 0 {
		return fmt.Errorf("group %d/%d: forming but has a public key", g.Index, g.Epoch)
	}
	for addr := range g.Committers {
		if _, ok := g.Members[addr]; !ok {
			return fmt.Errorf("group %d/%d: committer %s not a member", g.Index, g.Epoch, addr.Hex())
		}
	}
	return nil
}

// PublicKey returns the group's BLS public key (the polynomial's
// constant term), or nil if the group is still forming.
func (g *Group) PublicKey() kyber.Point {
	if len(g.Commits) == 0 {
		return nil
	}
	return g.Commits[0]
}

// PubPoly reconstructs the public polynomial used to verify individual
// partial signatures against each member's Shamir index, grounded on
// drand's key.DistPublic.PubPoly (common/key/keys.go).
func (g *Group) PubPoly(s *crypto.Scheme) *share.PubPoly {
	if len(g.Commits) == 0 {
		return nil
	}
	return share.NewPubPoly(s.KeyGroup, s.KeyGroup.Point().Base(), g.Commits)
}

// IsCommitter reports whether addr is in this group's committer set.
func (g *Group) IsCommitter(addr ethcommon.Address) bool {
	_, ok := g.Committers[addr]
	return ok
}

// SortedMembers returns members ordered by their Shamir index, the order
// used for deterministic PubPoly construction and partial ordering.
func (g *Group) SortedMembers() []*MemberInfo {
	out := make([]*MemberInfo, g.Size)
	for _, m := range g.Members {
		if m.Index >= 0 && m.Index < g.Size {
			out[m.Index] = m
		}
	}
	return out
}

// DKGStatus is LocalGroupState.dkg_status (spec.md §3).
type DKGStatus int

const (
	DKGStatusNone DKGStatus = iota
	DKGStatusInPhase
	DKGStatusCommitSuccess
	DKGStatusWaitForPostProcess
	DKGStatusPostProcess
)

func (s DKGStatus) String() string {
	switch s {
	case DKGStatusInPhase:
		return "in_phase"
	case DKGStatusCommitSuccess:
		return "commit_success"
	case DKGStatusWaitForPostProcess:
		return "wait_for_post_process"
	case DKGStatusPostProcess:
		return "post_process"
	default:
		return "none"
	}
}

// LocalGroupState is this node's cached view of its current group
// (spec.md §3). Share is set when the DKG machine completes (moving
// DKGStatus to CommitSuccess) and is kept through WaitForPostProcess.
type LocalGroupState struct {
	Group               *Group
	SelfIndex            int
	Share                *share.PriShare
	DKGStatus            DKGStatus
	DKGStartBlockHeight  uint64
}

// Empty reports whether the node currently belongs to no group.
func (s *LocalGroupState) Empty() bool {
	return s == nil || s.Group == nil
}
