//go:build pixeldebug

package pixel

const debugChecks = true
