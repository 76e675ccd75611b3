package store

import (
	"github.com/drand/kyber/share"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
)

var groupKey = []byte("current")

type memberDoc struct {
	Index            int
	IDAddress        string
	RPCEndpoint      string
	PartialPublicKey string // empty until group is ready
}

type groupDoc struct {
	Index      uint32
	Epoch      uint32
	Size       int
	Threshold  int
	State      int
	Commits    []string
	Members    []memberDoc
	Committers []string

	SelfIndex           int
	Share               string // empty until the DKG machine has produced a share
	ShareIndex          int
	DKGStatus           int
	DKGStartBlockHeight uint64
}

// SaveGroupState persists the node's current local group view, so a
// restart recovers group membership and (if committed) its secret share
// without re-running DKG (spec.md §3 LocalGroupState).
func (s *Store) SaveGroupState(state *key.LocalGroupState) error {
	if state.Empty() {
		return s.del(bucketGroup, groupKey)
	}
	g := state.Group
	doc := groupDoc{
		Index:     g.Index,
		Epoch:     g.Epoch,
		Size:      g.Size,
		Threshold: g.Threshold,
		State:     int(g.State),

		SelfIndex:           state.SelfIndex,
		DKGStatus:           int(state.DKGStatus),
		DKGStartBlockHeight: state.DKGStartBlockHeight,
	}
	for _, c := range g.Commits {
		doc.Commits = append(doc.Commits, key.PointToString(c))
	}
	for _, m := range g.SortedMembers() {
		if m == nil {
			continue
		}
		md := memberDoc{Index: m.Index, IDAddress: m.IDAddress.Hex(), RPCEndpoint: m.RPCEndpoint}
		if m.PartialPublicKey != nil {
			md.PartialPublicKey = key.PointToString(m.PartialPublicKey)
		}
		doc.Members = append(doc.Members, md)
	}
	for addr := range g.Committers {
		doc.Committers = append(doc.Committers, addr.Hex())
	}
	if state.Share != nil {
		doc.Share = key.ScalarToString(state.Share.V)
		doc.ShareIndex = state.Share.I
	}
	return s.putJSON(bucketGroup, groupKey, doc)
}

// LoadGroupState reads back the persisted local group state, or
// (nil, false, nil) if none has been saved.
func (s *Store) LoadGroupState(sch *crypto.Scheme) (*key.LocalGroupState, bool, error) {
	var doc groupDoc
	found, err := s.getJSON(bucketGroup, groupKey, &doc)
	if err != nil || !found {
		return nil, found, err
	}
	g := key.NewForming(doc.Index, doc.Epoch, doc.Size, doc.Threshold)
	g.State = key.GroupState(doc.State)
	for _, cs := range doc.Commits {
		p, err := key.StringToPoint(sch.KeyGroup, cs)
		if err != nil {
			return nil, false, err
		}
		g.Commits = append(g.Commits, p)
	}
	for _, md := range doc.Members {
		m := &key.MemberInfo{
			Index:       md.Index,
			IDAddress:   ethcommon.HexToAddress(md.IDAddress),
			RPCEndpoint: md.RPCEndpoint,
		}
		if md.PartialPublicKey != "" {
			p, err := key.StringToPoint(sch.KeyGroup, md.PartialPublicKey)
			if err != nil {
				return nil, false, err
			}
			m.PartialPublicKey = p
		}
		g.Members[m.IDAddress] = m
	}
	for _, addr := range doc.Committers {
		g.Committers[ethcommon.HexToAddress(addr)] = struct{}{}
	}

	state := &key.LocalGroupState{
		Group:               g,
		SelfIndex:           doc.SelfIndex,
		DKGStatus:           key.DKGStatus(doc.DKGStatus),
		DKGStartBlockHeight: doc.DKGStartBlockHeight,
	}
	if doc.Share != "" {
		sc, err := key.StringToScalar(sch.KeyGroup, doc.Share)
		if err != nil {
			return nil, false, err
		}
		state.Share = &share.PriShare{V: sc, I: doc.ShareIndex}
	}
	return state, true, nil
}
