// Package pipeline runs a graph of steps connected by channels.
//
// A pipeline starts with one or more root steps that produce elements, passes
// them through one-to-one steps (optionally with several goroutines), may route
// them with a splitter, and ends with sinks. Every step runs in its own
// goroutine once Run is called.
//
// The first error returned by any step cancels the whole pipeline and is
// returned by Run, prefixed with the name of the step that failed. Nothing
// downstream of a failing step should treat its partial output as complete.
//
// Options (see the measure and drawer sub-packages) observe the graph while it
// is built and every element as it flows.
package pipeline
