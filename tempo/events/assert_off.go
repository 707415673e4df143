//go:build !schedassert

package events

// assertDuplicates makes inserting an already pending kind panic. Enable it
// with the schedassert build tag when chasing a dispatcher that forgets to
// consume or re-arm an event. Code that replaces a pending event on purpose
// cancels it first.
const assertDuplicates = false
