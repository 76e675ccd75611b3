package crypto_test

import (
	"testing"

	"github.com/drand/kyber/share"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/crypto"
)

// dkgShares builds a simple (non-distributed) t-of-n Shamir sharing of a
// fresh secret over sch.KeyGroup, the same shortcut drand's beacon node
// tests use in place of running a full DKG.
func dkgShares(t *testing.T, sch *crypto.Scheme, n, thr int) ([]*share.PriShare, *share.PubPoly) {
	t.Helper()
	secret := sch.KeyGroup.Scalar().Pick(random.New())
	pri := share.NewPriPoly(sch.KeyGroup, thr, secret, random.New())
	pub := pri.Commit(sch.KeyGroup.Point().Base())
	return pri.Shares(n), pub
}

func TestPartialSignAndRecover(t *testing.T) {
	sch := crypto.New()
	const n, thr = 5, 3
	shares, pub := dkgShares(t, sch, n, thr)

	msg := []byte("randomness task round 42")
	partials := make([][]byte, 0, n)
	for _, s := range shares {
		sig, err := sch.PartialSign(s, msg)
		require.NoError(t, err)
		partials = append(partials, sig)
	}

	recovered, err := sch.RecoverSignature(pub, msg, partials, thr, n)
	require.NoError(t, err)

	_, commit := pub.Info()
	require.NoError(t, sch.VerifyRecovered(commit, msg, recovered))
}

func TestVerifyPartial(t *testing.T) {
	sch := crypto.New()
	const n, thr = 5, 3
	shares, pub := dkgShares(t, sch, n, thr)

	msg := []byte("randomness task round 9")
	member := shares[0]
	sig, err := sch.PartialSign(member, msg)
	require.NoError(t, err)

	partialPub := pub.Eval(member.I).V
	require.NoError(t, sch.VerifyPartial(partialPub, msg, sig))

	otherPub := pub.Eval(shares[1].I).V
	require.Error(t, sch.VerifyPartial(otherPub, msg, sig))
}

func TestRecoverSignatureFailsWithTooFewPartials(t *testing.T) {
	sch := crypto.New()
	const n, thr = 5, 3
	shares, pub := dkgShares(t, sch, n, thr)

	msg := []byte("randomness task round 7")
	partials := make([][]byte, 0, thr-1)
	for _, s := range shares[:thr-1] {
		sig, err := sch.PartialSign(s, msg)
		require.NoError(t, err)
		partials = append(partials, sig)
	}

	_, err := sch.RecoverSignature(pub, msg, partials, thr, n)
	require.Error(t, err)
}

func TestVerifyRecoveredRejectsWrongMessage(t *testing.T) {
	sch := crypto.New()
	const n, thr = 4, 2
	shares, pub := dkgShares(t, sch, n, thr)

	msg := []byte("round 1")
	partials := make([][]byte, 0, n)
	for _, s := range shares {
		sig, err := sch.PartialSign(s, msg)
		require.NoError(t, err)
		partials = append(partials, sig)
	}
	recovered, err := sch.RecoverSignature(pub, msg, partials, thr, n)
	require.NoError(t, err)

	_, commit := pub.Info()
	require.Error(t, sch.VerifyRecovered(commit, []byte("a different round"), recovered))
}
