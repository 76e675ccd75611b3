// Package committer is the node-to-node gRPC surface of spec.md §4.4 step
// 3: a non-committer member sends its BLS partial signature to every
// committer of its group; a committer accepts, verifies, and deposits it
// into its own SignatureResultCache. Shaped like drand's Protocol service
// (net/grpc.go's Service, dkg_grpc.go) but with a hand-written codec
// (rpc.CodecName) in place of protoc-generated stubs — see
// rpc/codec.go and DESIGN.md.
package committer

import (
	"context"
	"fmt"
	"net"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/rpc"
)

// CommitPartialSignatureRequest is sent by any group member to a
// committer of the same group.
type CommitPartialSignatureRequest struct {
	ChainID   uint64 `json:"chain_id"`
	GroupIndex uint32 `json:"group_index"`
	Epoch     uint32 `json:"epoch"`
	RequestID [32]byte `json:"request_id"`
	Message   []byte `json:"message"`
	// SenderIndex is the sending member's Shamir index, used to find the
	// right partial_public_key to verify against.
	SenderIndex int    `json:"sender_index"`
	Signature   []byte `json:"signature"`
}

type CommitPartialSignatureResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

const serviceName = "randcast.Committer"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CommitPartialSignature",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(CommitPartialSignatureRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(Server).CommitPartialSignature(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CommitPartialSignature"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(Server).CommitPartialSignature(ctx, req.(*CommitPartialSignatureRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{},
}

// Server is implemented by the node-local handler that accepts partial
// signatures forwarded by fellow group members (PostSuccessGroupingSubscriber
// wires this once the node is itself a committer).
type Server interface {
	CommitPartialSignature(ctx context.Context, req *CommitPartialSignatureRequest) (*CommitPartialSignatureResponse, error)
}

// RegisterServer attaches srv to s under this package's service
// descriptor.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// handler is the concrete Server implementation: it authenticates the
// caller against the group's member set, verifies the partial signature
// against the sender's partial_public_key, and deposits it into the
// signature cache (spec §4.6 invariant (ii)).
type handler struct {
	scheme *crypto.Scheme
	groups cache.GroupInfoHandler
	sigs   cache.SignatureResultCacheHandler
	log    log.Logger
}

// NewServer builds the committer-side handler.
func NewServer(scheme *crypto.Scheme, groups cache.GroupInfoHandler, sigs cache.SignatureResultCacheHandler, l log.Logger) Server {
	return &handler{scheme: scheme, groups: groups, sigs: sigs, log: l.Named("committer")}
}

func (h *handler) CommitPartialSignature(ctx context.Context, req *CommitPartialSignatureRequest) (*CommitPartialSignatureResponse, error) {
	state := h.groups.Get()
	if state.Empty() || state.Group.Index != req.GroupIndex || state.Group.Epoch != req.Epoch {
		return &CommitPartialSignatureResponse{Accepted: false, Reason: "not the current group/epoch"}, nil
	}
	members := state.Group.SortedMembers()
	if req.SenderIndex < 0 || req.SenderIndex >= len(members) || members[req.SenderIndex] == nil {
		return &CommitPartialSignatureResponse{Accepted: false, Reason: "unknown sender index"}, nil
	}
	sender := members[req.SenderIndex]
	if sender.PartialPublicKey == nil {
		return &CommitPartialSignatureResponse{Accepted: false, Reason: "sender has no partial public key"}, nil
	}
	if err := h.scheme.VerifyPartial(sender.PartialPublicKey, req.Message, req.Signature); err != nil {
		h.log.Warnw("rejected partial signature", "sender", sender.IDAddress.Hex(), "request_id", fmt.Sprintf("%x", req.RequestID), "error", err)
		return &CommitPartialSignatureResponse{Accepted: false, Reason: "signature verification failed"}, nil
	}
	h.sigs.GetOrCreate(req.ChainID, req.GroupIndex, req.RequestID, req.Message, state.Group.Threshold, state.Group.Size-state.Group.Threshold)
	if !h.sigs.AddPartial(req.ChainID, req.RequestID, [20]byte(sender.IDAddress), req.Signature) {
		return &CommitPartialSignatureResponse{Accepted: false, Reason: "already committed or at capacity"}, nil
	}
	return &CommitPartialSignatureResponse{Accepted: true}, nil
}

// Client sends partial signatures to a single committer peer.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to a committer's advertised RPC endpoint.
func Dial(ctx context.Context, endpoint string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)))
	conn, err := grpc.DialContext(ctx, endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial committer %s: %w", endpoint, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// CommitPartialSignature sends one partial signature, optionally
// authenticating the call with a shared management bearer token carried
// in the outgoing context (spec.md §6 does not require peer auth beyond
// group-membership verification server-side, but a token is accepted if
// the caller already put one on ctx via metadata).
func (c *Client) CommitPartialSignature(ctx context.Context, req *CommitPartialSignatureRequest) (*CommitPartialSignatureResponse, error) {
	resp := new(CommitPartialSignatureResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/CommitPartialSignature", req, resp, grpc.CallContentSubtype(rpc.CodecName))
	return resp, err
}

// WithBearerToken attaches a bearer token to an outgoing committer RPC
// context, matching the interceptor rpc/management wires on the operator
// surface.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "bearer "+token)
}

// ListeningServer owns the TCP listener and grpc.Server backing one
// group's committer endpoint, grounded on drand's plain-TCP grpc
// listener (net/listener_grpc.go's NewTCPGrpcListener) minus the cmux
// REST mux, since this surface has no JSON-gateway counterpart.
type ListeningServer struct {
	lis    net.Listener
	server *grpc.Server
}

// Listen binds addr and registers srv, wiring the same prometheus
// interceptors the teacher's grpc listener does.
func Listen(addr string, srv Server) (*ListeningServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := grpc.NewServer(
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)
	RegisterServer(s, srv)
	grpc_prometheus.Register(s)
	return &ListeningServer{lis: lis, server: s}, nil
}

// Addr is the bound TCP address, useful when addr was given as ":0".
func (s *ListeningServer) Addr() string { return s.lis.Addr().String() }

// Serve blocks accepting connections until Stop is called or the
// listener errors.
func (s *ListeningServer) Serve() error { return s.server.Serve(s.lis) }

// Stop gracefully drains in-flight RPCs then closes the listener,
// matching the FixedScheduler cancellation contract: the caller's ctx
// is cancelled and this is called from the deferred cleanup, not awaited
// inline.
func (s *ListeningServer) Stop() { s.server.GracefulStop() }
