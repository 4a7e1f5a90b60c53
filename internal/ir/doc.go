// Package ir provides the value types shared by every other lemma package:
// rule programs, triple patterns, facts, justifications and transaction
// deltas.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Nodes are github.com/cayleygraph/quad values, normalized on entry so that
//     native typed values (quad.Int, quad.Bool, ...) compare equal to their
//     typed-string form.
//   - Field, Pattern and FactKey are comparable with == and usable as map keys.
//   - Fact identity for reasoning purposes is FactKey (subject, predicate,
//     object, context); store bookkeeping fields never take part in equality.
//   - Content-addressed identities (rule ids, justification signatures) use
//     RFC 8785 canonical JSON and SHA-256 with domain separation.
package ir
