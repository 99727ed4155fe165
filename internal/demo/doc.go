// Package demo contains ready-made subjects: small concurrent data
// structures, some correct and some deliberately broken, each paired with
// the verifier that judges it.
//
// They double as documentation of how to describe a subject and as the
// targets of the interleave command.
package demo
