//go:build !debug_bufcache

package bufcache

// DebugValidate no-ops unless the debug_bufcache build tag is present.
func DebugValidate(v Validatable) {
}
