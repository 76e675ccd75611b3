package dkgphase

import (
	"testing"

	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/crypto"
)

func TestSignAndOpenEnvelopeRoundTrips(t *testing.T) {
	sch := crypto.New()
	priv := sch.KeyGroup.Scalar().Pick(random.New())
	pub := sch.KeyGroup.Point().Mul(priv, nil)

	raw, err := signEnvelope(sch, priv, "share", []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	payload, err := openEnvelope(sch, pub, "share", raw)
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(payload))
}

func TestOpenEnvelopeRejectsWrongKind(t *testing.T) {
	sch := crypto.New()
	priv := sch.KeyGroup.Scalar().Pick(random.New())
	pub := sch.KeyGroup.Point().Mul(priv, nil)

	raw, err := signEnvelope(sch, priv, "share", []byte(`{}`))
	require.NoError(t, err)

	_, err = openEnvelope(sch, pub, "response", raw)
	require.Error(t, err)
}

func TestOpenEnvelopeRejectsWrongSigner(t *testing.T) {
	sch := crypto.New()
	priv := sch.KeyGroup.Scalar().Pick(random.New())
	otherPriv := sch.KeyGroup.Scalar().Pick(random.New())
	otherPub := sch.KeyGroup.Point().Mul(otherPriv, nil)

	raw, err := signEnvelope(sch, priv, "share", []byte(`{}`))
	require.NoError(t, err)

	_, err = openEnvelope(sch, otherPub, "share", raw)
	require.Error(t, err)
}

func TestOpenEnvelopeRejectsGarbage(t *testing.T) {
	sch := crypto.New()
	pub := sch.KeyGroup.Point().Pick(random.New())

	_, err := openEnvelope(sch, pub, "share", []byte("not json"))
	require.Error(t, err)
}

func TestEncodeDecodeSharePacketRoundTrips(t *testing.T) {
	sch := crypto.New()
	priv := sch.KeyGroup.Scalar().Pick(random.New())
	pub := sch.KeyGroup.Point().Mul(priv, nil)

	raw, err := encodeShare(sch, priv, 2, nil)
	require.NoError(t, err)

	sp, err := decodeShare(sch, pub, raw)
	require.NoError(t, err)
	require.Equal(t, 2, sp.Dealer)
	require.Empty(t, sp.Deals)
}

func TestEncodeDecodeResponsePacketRoundTrips(t *testing.T) {
	sch := crypto.New()
	priv := sch.KeyGroup.Scalar().Pick(random.New())
	pub := sch.KeyGroup.Point().Mul(priv, nil)

	raw, err := encodeResponses(sch, priv, 1, nil)
	require.NoError(t, err)

	rp, err := decodeResponses(sch, pub, raw)
	require.NoError(t, err)
	require.Equal(t, 1, rp.Sender)
}

func TestEncodeDecodeJustificationPacketRoundTrips(t *testing.T) {
	sch := crypto.New()
	priv := sch.KeyGroup.Scalar().Pick(random.New())
	pub := sch.KeyGroup.Point().Mul(priv, nil)

	raw, err := encodeJustifications(sch, priv, 3, nil)
	require.NoError(t, err)

	jp, err := decodeJustifications(sch, pub, raw)
	require.NoError(t, err)
	require.Equal(t, 3, jp.Dealer)
}
