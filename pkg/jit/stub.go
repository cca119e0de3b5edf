//go:build !linux || !amd64

// The backend emits x86-64 code and toggles page protections through Linux
// mprotect; only linux/amd64 gets the real implementation.
package jit
