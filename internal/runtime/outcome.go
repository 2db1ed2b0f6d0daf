package runtime

// InterfaceOutcome is the condensed in-memory result of an interface step,
// kept on the node so same-group assertions can read the last response
// without a telemetry round-trip.
type InterfaceOutcome struct {
	StatusCode  int
	Headers     map[string]string
	Body        string
	ErrMsg      string
	DetailType  string
	DetailIndex string
	DurationMs  int64
	OK          bool
}

// SetOutcome stores the interface outcome of this node.
func (n *Node) SetOutcome(o *InterfaceOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcome = o
}

// Outcome returns the stored interface outcome, nil when the step never sent.
func (n *Node) Outcome() *InterfaceOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outcome
}
