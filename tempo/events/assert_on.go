//go:build schedassert

package events

const assertDuplicates = true
