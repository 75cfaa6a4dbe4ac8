// Package harness is the execution runtime of merit: discovery and
// parametrization of registered tests, a scoped dependency-injection
// resource resolver, non-aborting assertion capture, and a concurrent
// scheduler with per-item timeout and max-failure cutoff.
//
// # Architecture
//
// Tests are registered as SuiteDefs holding TestDefs. Collect expands every
// test through its parametrization axes into immutable TestItems; the order
// of the returned items is the discovery order that all later ordering
// guarantees refer to. The Runner dispatches items with bounded concurrency,
// forks a per-case Resolver for each item, invokes the body with an active
// *T capture context, and aggregates all outcomes into a Run.
//
// # Assertion capture
//
// Go has no assert-statement interception, so capture is an explicit builder:
//
//	func testGreeting(ctx context.Context, t *harness.T) error {
//	    reply := agent.Chat(ctx, "hi")
//	    t.Check(reply != "", "reply is not empty").
//	        Explain(func() string { return "agent returned an empty reply" })
//	    t.Check(strings.Contains(reply, "hello"), "reply greets the user")
//	    return nil
//	}
//
// Every Check records exactly one AssertionResult; a failing condition never
// aborts the body, and the Explain callback runs only on failure.
//
// # Resources
//
// Resources are named factories with CASE, SUITE, or SESSION lifetime.
// Dependencies are declared explicitly on the definition and delivered to
// the factory as a name-keyed map; teardown is an explicit cleanup function
// returned by the factory and invoked in reverse-acquisition order.
package harness
