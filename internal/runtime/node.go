package runtime

import (
	"sync"
	"time"

	"github.com/asynctest/asynctest/internal/spec"
)

// NodeKind distinguishes the four ancestor categories of the tree.
type NodeKind int

const (
	KindTask NodeKind = iota
	KindCase
	KindChildCase
	KindStep
)

// Node is one dynamic tree node. The parent pointer is a weak back reference
// used for navigation and status propagation; ownership runs strictly
// downward through the registry. All volatile state is guarded by the mutex.
type Node struct {
	Key  string
	Kind NodeKind
	SPI  spec.SPI

	// Exactly one of these is set, matching Kind. Step is also set for
	// virtual nodes.
	Task      *spec.TaskInfo
	Case      *spec.Case
	ChildCase *spec.ChildCase
	Step      *spec.Step

	parent *Node

	mu              sync.Mutex
	status          Status
	result          Result
	hasChildError   bool
	hasChildSkipped bool
	errorInfo       string
	start           int64
	end             int64

	tempVariables map[string]any
	canSet        bool

	// Last interface result published under this node, consumed by
	// assertion steps in the same group.
	interfaceLast        *Node
	interfaceLastOK      bool
	interfaceDetailIndex string
	outcome              *InterfaceOutcome
}

// Parent returns the weak back reference, nil at the root.
func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Node) SetStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// ForceSkip marks the node skipped unless it already reached a terminal
// state; used by the error-strategy engine.
func (n *Node) ForceSkip() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status.Terminal() {
		return false
	}
	n.status = StatusSkipped
	return true
}

func (n *Node) Result() Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result
}

func (n *Node) SetResult(r Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.result = r
}

func (n *Node) MarkChildError() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hasChildError = true
}

func (n *Node) MarkChildSkipped() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hasChildSkipped = true
}

func (n *Node) HasChildError() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hasChildError
}

func (n *Node) HasChildSkipped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hasChildSkipped
}

func (n *Node) SetErrorInfo(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.errorInfo == "" {
		n.errorInfo = msg
	}
}

func (n *Node) ErrorInfo() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errorInfo
}

func (n *Node) StampStart() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.start = time.Now().UnixMilli()
}

func (n *Node) StampEnd() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.end = time.Now().UnixMilli()
}

func (n *Node) Span() (int64, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.start, n.end
}

// CanSet reports whether variable writes are allowed from this node.
func (n *Node) CanSet() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.canSet
}

func (n *Node) SetCanSet(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canSet = v
}

// TempGet reads one temp variable local to this node.
func (n *Node) TempGet(name string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tempVariables == nil {
		return nil, false
	}
	v, ok := n.tempVariables[name]
	return v, ok
}

// TempSet writes one temp variable local to this node.
func (n *Node) TempSet(name string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tempVariables == nil {
		n.tempVariables = map[string]any{}
	}
	n.tempVariables[name] = value
}

// TempSnapshot copies this node's temp variables into dst, not overriding
// entries already present (closer scopes win).
func (n *Node) TempSnapshot(dst map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, v := range n.tempVariables {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

// IsTempBoundary reports whether the temp-variable walk stops after this
// node: child cases and the loop-synthesized virtuals own a temp scope.
func (n *Node) IsTempBoundary() bool {
	if n.Kind == KindChildCase {
		return true
	}
	return n.Step != nil && n.Step.Type.IsVirtual()
}

// PublishInterface records the last interface result on this node for
// downstream assertions among its children.
func (n *Node) PublishInterface(last *Node, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.interfaceLast = last
	n.interfaceLastOK = ok
}

// LastInterface returns the most recent interface child result.
func (n *Node) LastInterface() (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.interfaceLast, n.interfaceLastOK
}

// SetDetailIndex stores the telemetry key prefix of this node's detail blob.
func (n *Node) SetDetailIndex(index string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.interfaceDetailIndex = index
}

func (n *Node) DetailIndex() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.interfaceDetailIndex
}

// Ancestor returns the nearest ancestor (including self) matching the
// predicate, or nil.
func (n *Node) Ancestor(match func(*Node) bool) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if match(cur) {
			return cur
		}
	}
	return nil
}

// Tree is the per-run node registry: the dynamic mapping keyed by SPI-derived
// strings. Nodes live exactly as long as the registry.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

func NewTree() *Tree {
	return &Tree{nodes: map[string]*Node{}}
}

// Register adds a node under its key and returns it.
func (t *Tree) Register(n *Node) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.Key] = n
	return n
}

// Get looks a node up by its dynamic-mapping key.
func (t *Tree) Get(key string) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[key]
}

// Len returns the number of registered nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Walk visits every registered node.
func (t *Tree) Walk(fn func(*Node)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.nodes {
		fn(n)
	}
}
