// Package rpc holds the node-to-node and operator gRPC surfaces
// (spec.md §4.4 step 3 "committer-facing gRPC", §6 management API).
//
// The teacher's gRPC services (net/grpc.go's Service, drand.RandomnessServer
// etc.) are protoc-generated from `.proto` sources checked into
// protobuf/drand and protobuf/crypto/dkg. This module has no protoc
// toolchain to regenerate an equivalent stub for its own, spec-defined
// message shapes, so rather than fabricate generated-looking code by
// hand, the services here register a plain google.golang.org/grpc
// encoding.Codec backed by encoding/json: messages are ordinary Go
// structs (not proto.Message), and grpc.Server/grpc.ClientConn carry
// them over the same HTTP/2 transport, interceptor chain, and streaming
// machinery a protoc-gen-go-grpc service would use. See DESIGN.md
// "Dropped teacher dependencies" for the reasoning.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is the content-subtype every client dial and server
// registration in this package must agree on (grpc picks a codec by
// matching the "grpc+<name>" content-subtype on the wire).
const CodecName = jsonCodecName
