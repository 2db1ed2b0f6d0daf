package runtime

import "github.com/asynctest/asynctest/internal/spec"

// Error strategy names.
const (
	StrategyRaise              = "raise"
	StrategyRefCaseInner       = "ref_case_inner"
	StrategyTask               = "task"
	StrategyCurrentStep        = "current_step"
	StrategyCase               = "case"
	StrategyCurrentCase        = "current_case"
	StrategyMultitasker        = "multitasker"
	StrategyCurrentMultitasker = "current_multitasker"
	StrategyRefCase            = "ref_case"
	StrategyRefChildCase       = "ref_child_case"
)

// ApplyErrorStrategy walks from the failing node upward to find the first
// decisive ancestor, then marks the selected target node skipped. Raise
// ancestors are transparent; ref_case_inner ancestors defer to their own
// case-level strategy and stay transparent when that is also raise. Returns
// the chosen target, nil when the decision is a no-op.
func ApplyErrorStrategy(failing *Node, inCase bool) *Node {
	var mtIterator *Node

	for cur := failing; cur != nil; cur = cur.Parent() {
		if cur.Step != nil && cur.Step.Type == spec.StepTypeChildMultitasker {
			mtIterator = cur
		}

		strategy := strategyOf(cur)
		if strategy == "" || strategy == StrategyRaise {
			continue
		}
		if strategy == StrategyRefCaseInner {
			strategy = caseStrategyOf(cur)
			if strategy == "" || strategy == StrategyRaise {
				continue
			}
		}

		target := selectTarget(strategy, failing, mtIterator, inCase)
		if target != nil {
			target.ForceSkip()
		}
		return target
	}
	return nil
}

// strategyOf reads the node's own error strategy.
func strategyOf(n *Node) string {
	switch {
	case n.Step != nil:
		return n.Step.ErrorStrategy
	case n.Kind == KindChildCase && n.ChildCase != nil:
		return n.ChildCase.ErrorStrategy
	case n.Kind == KindCase && n.Case != nil:
		return n.Case.ErrorStrategy
	case n.Kind == KindTask && n.Task != nil:
		return n.Task.ErrorStrategy
	}
	return ""
}

// caseStrategyOf reads the inner-case strategy a ref_case_inner node defers to.
func caseStrategyOf(n *Node) string {
	if n.Step != nil {
		return n.Step.CaseErrorStrategy
	}
	return ""
}

func selectTarget(strategy string, failing, mtIterator *Node, inCase bool) *Node {
	switch strategy {
	case StrategyTask:
		return failing.Ancestor(func(n *Node) bool { return n.Kind == KindTask })

	case StrategyCurrentStep:
		// Only the failing step itself is marked; nothing else changes.
		return nil

	case StrategyCase:
		if inCase {
			inner := innerCase(failing)
			if inner != nil && inner.Step.ErrorStrategy == StrategyRefCaseInner {
				return inner
			}
		}
		return failing.Ancestor(func(n *Node) bool { return n.Kind == KindCase })

	case StrategyCurrentCase:
		if inCase {
			inner := innerCase(failing)
			if inner != nil && inner.Step.ErrorStrategy == StrategyRefCaseInner {
				return innerChildCase(failing)
			}
		}
		return failing.Ancestor(func(n *Node) bool { return n.Kind == KindChildCase })

	case StrategyMultitasker:
		if mtIterator == nil {
			return nil
		}
		return mtIterator.Parent()

	case StrategyCurrentMultitasker:
		return mtIterator

	case StrategyRefCase:
		return innerCase(failing)

	case StrategyRefChildCase:
		return innerChildCase(failing)
	}
	return nil
}

// innerCase finds the nearest enclosing nested-case step node.
func innerCase(n *Node) *Node {
	return n.Ancestor(func(a *Node) bool {
		return a.Step != nil && a.Step.Type == spec.StepTypeCase
	})
}

// innerChildCase finds the nearest enclosing virtual child-step-case node.
func innerChildCase(n *Node) *Node {
	return n.Ancestor(func(a *Node) bool {
		return a.Step != nil && a.Step.Type == spec.StepTypeChildStepCase
	})
}
