// Package harness runs reasoning scenarios against a real store and
// reasoner.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: transitive_chain
//	description: "ancestor closes over parent chains"
//	namespaces:
//	  ex: "http://example.org/"
//	rules:
//	  - name: ancestor-base
//	    rule: "(?a ex:parent ?b) -> (?a ex:ancestor ?b)"
//	  - name: ancestor-step
//	    rule: "(?a ex:parent ?b), (?b ex:ancestor ?c) -> (?a ex:ancestor ?c)"
//	steps:
//	  - add: [[ex:a, ex:parent, ex:b], [ex:b, ex:parent, ex:c]]
//	  - remove: [[ex:b, ex:parent, ex:c]]
//	  - add_rule: {name: r, rule: "..."}
//	  - remove_rules: [ancestor-step]
//	  - rerun: true
//	assertions:
//	  - type: inferred
//	    facts: [[ex:a, ex:ancestor, ex:b]]
//
// Instead of inline rules, program may name a CUE file (see
// compiler.LoadProgram); inline rules are then added to it. Facts are three
// or four terms in rule term syntax. In assertions a three-term fact matches
// any graph, so inferred facts can be named without their context.
//
// # Assertion Types
//
//   - contains: every fact is live
//   - absent: no fact is live
//   - inferred: the live inferred facts are exactly these
//   - justifications: the fact has count stored justifications
//   - explain: the fact's base support sets, in any order
//
// # Deterministic Testing
//
// Each scenario runs in its own in-memory SQLite store with a
// testutil.DeterministicClock. Every step waits for the reasoner before the
// next one starts, so step deltas and the final fact base are reproducible
// and can be compared against golden snapshots (RunWithGolden).
package harness
