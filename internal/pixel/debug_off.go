//go:build !pixeldebug

package pixel

// debugChecks enables range assertions in the transcoder. Build with
// '-tags pixeldebug' to turn them on.
const debugChecks = false
