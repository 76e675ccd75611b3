// Package crypto wires the pairing-based BLS scheme used for the group
// public key, threshold partial signatures, and DKG packet signing.
//
// Grounded on drand's crypto/schemes.go: a BLS12-381 pairing, group keys
// in G1 (the DKG's long-term keys and the group public key), signatures
// in G2 (partial and aggregated randomness signatures), and a threshold
// scheme able to recover a full signature from any t valid partials.
package crypto

import (
	"fmt"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/share"
	"github.com/drand/kyber/sign"
	signBls "github.com/drand/kyber/sign/bls"
	"github.com/drand/kyber/sign/schnorr"
	"github.com/drand/kyber/sign/tbls"
)

// Scheme bundles the groups and signature schemes used across the node.
// Built once at process start and passed down through the Context.
type Scheme struct {
	Pairing *bls.Suite
	// KeyGroup is where DKG long-term keys and the group public key live.
	KeyGroup kyber.Group
	// SigGroup is where partial and aggregated signatures live.
	SigGroup kyber.Group
	// Threshold is the t-of-n BLS scheme: partial sign, recover, verify.
	Threshold sign.ThresholdScheme
	// PacketAuth authenticates DKG transcript packets between members
	// (Phase 1-3 payloads posted to the Coordinator), independent of the
	// group threshold key which doesn't exist until Phase 4 completes.
	PacketAuth sign.Scheme
	// single is the plain (non-threshold) BLS scheme on G2, used to verify
	// individual partial signatures against a member's partial public key.
	single sign.Scheme
}

type schnorrSuite struct {
	kyber.Group
}

// New builds the default BLS12-381 scheme. Kept as a constructor (rather
// than a package-level singleton) so tests can build independent schemes.
func New() *Scheme {
	pairing := bls.NewBLS12381Suite()
	keyGroup := pairing.G1()
	sigGroup := pairing.G2()
	return &Scheme{
		Pairing:    pairing,
		KeyGroup:   keyGroup,
		SigGroup:   sigGroup,
		Threshold:  tbls.NewThresholdSchemeOnG2(pairing),
		PacketAuth: schnorr.NewScheme(&schnorrSuite{keyGroup}),
		single:     signBls.NewSchemeOnG2(pairing),
	}
}

// PartialSign produces this member's partial signature over msg using its
// Shamir share. priShare.I is the member's index (the Shamir evaluation
// point), matching MemberInfo.Index.
func (s *Scheme) PartialSign(priShare *share.PriShare, msg []byte) ([]byte, error) {
	sig, err := s.Threshold.Sign(priShare, msg)
	if err != nil {
		return nil, fmt.Errorf("partial sign: %w", err)
	}
	return sig, nil
}

// VerifyPartial checks a partial signature against the issuing member's
// partial public key (a point derived from the group's public polynomial
// at that member's index), per spec §4.6 invariant (ii).
// partialSig is a tbls share as produced by PartialSign: a 2-byte index
// prefix followed by the signature value, which is what gets verified.
func (s *Scheme) VerifyPartial(partialPub kyber.Point, msg, partialSig []byte) error {
	if len(partialSig) < 2 {
		return fmt.Errorf("partial signature verification failed: share too short")
	}
	sh := tbls.SigShare(partialSig)
	if err := s.single.Verify(partialPub, msg, sh.Value()); err != nil {
		return fmt.Errorf("partial signature verification failed: %w", err)
	}
	return nil
}

// RecoverSignature aggregates any t (or more) valid partials into a full
// threshold signature over msg, verifiable against the group public key.
func (s *Scheme) RecoverSignature(pub *share.PubPoly, msg []byte, partials [][]byte, t, n int) ([]byte, error) {
	return s.Threshold.Recover(pub, msg, partials, t, n)
}

// VerifyRecovered checks a recovered (aggregated) signature against the
// group's public key.
func (s *Scheme) VerifyRecovered(groupPublic kyber.Point, msg, sig []byte) error {
	return s.Threshold.VerifyRecovered(groupPublic, msg, sig)
}
