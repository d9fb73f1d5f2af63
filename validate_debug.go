//go:build debug_bufcache

package bufcache

// DebugValidate calls Validate and panics on the first violation. This
// no-ops unless the debug_bufcache build tag is present.
func DebugValidate(v Validatable) {
	if err := v.Validate(); err != nil {
		panic(err)
	}
}
