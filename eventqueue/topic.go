// Package eventqueue is the process-wide publish/subscribe bus of
// spec.md §4.2: listeners publish typed events, subscribers consume them
// and spawn dynamic tasks. No single third-party pub/sub fit an
// in-process, non-blocking, topic-typed bus with stable (topic,
// subscriber_id) replace semantics (see DESIGN.md), so this is built
// directly on a mutex-guarded callback registry, the same way drand guards its shared caches
// with a plain sync.RWMutex rather than a library (e.g.
// chain/beacon/cache.go).
package eventqueue

import "fmt"

// Topic identifies one event stream. Chain- or request-scoped topics
// embed their scoping key in Key (spec.md §4.2 topic list).
type Topic struct {
	Name string
	Key  string // e.g. chain_id, or "chain_id/request_id"; empty for global topics
}

func (t Topic) String() string {
	if t.Key == "" {
		return t.Name
	}
	return fmt.Sprintf("%s(%s)", t.Name, t.Key)
}

// Global topics (no scoping key).
func TopicDkgReady() Topic       { return Topic{Name: "DkgReady"} }
func TopicDkgSuccess() Topic     { return Topic{Name: "DkgSuccess"} }
func TopicDkgPostProcess() Topic { return Topic{Name: "DkgPostProcess"} }

// Per-chain topics.
func TopicNewBlock(chainID uint64) Topic {
	return Topic{Name: "NewBlock", Key: fmt.Sprintf("%d", chainID)}
}

func TopicNewRandomnessTask(chainID uint64) Topic {
	return Topic{Name: "NewRandomnessTask", Key: fmt.Sprintf("%d", chainID)}
}

// TopicGroupRelayConfirmed is a relayed-chain-only topic (SPEC_FULL §12,
// supplemented from original_source/): fires once ControllerRelayer has
// observably applied the latest group push.
func TopicGroupRelayConfirmed(chainID uint64) Topic {
	return Topic{Name: "GroupRelayConfirmed", Key: fmt.Sprintf("%d", chainID)}
}

func TopicReadyToHandleRandomnessTask(chainID uint64) Topic {
	return Topic{Name: "ReadyToHandleRandomnessTask", Key: fmt.Sprintf("%d", chainID)}
}

// Per-(chain,request) topics. A subscriber registers against the bare
// Name* constant via Queue.SubscribeByName, since the request_id isn't
// known until after subscriber registration (spec.md §4.2 "subscribers
// register before listeners start").
const (
	NamePartialSignatureFinished = "PartialSignatureFinished"
	NameReadyToAggregate         = "ReadyToAggregate"
)

func TopicPartialSignatureFinished(chainID uint64, requestID string) Topic {
	return Topic{Name: NamePartialSignatureFinished, Key: fmt.Sprintf("%d/%s", chainID, requestID)}
}

func TopicReadyToAggregate(chainID uint64, requestID string) Topic {
	return Topic{Name: NameReadyToAggregate, Key: fmt.Sprintf("%d/%s", chainID, requestID)}
}
