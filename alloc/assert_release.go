//go:build !allocdebug

package alloc

// debugAssert is a no-op in release builds (no allocdebug build tag). A
// violated precondition is undefined behavior, not a runtime error.
func debugAssert(cond bool, msg string) {}
