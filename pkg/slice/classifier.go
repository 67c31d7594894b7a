package slice

// IsSliceExclusive reports whether every address a candidate uses is bound to
// the slice network.
//
// When slicing is inactive every candidate is allowed. Otherwise a candidate
// without any address is rejected, as is one where any address is either not
// a slice address or is known to belong to another interface.
func IsSliceExclusive(addresses []string, ctx Context) bool {
	if !ctx.Active() {
		return true
	}
	if len(addresses) == 0 {
		return false
	}
	for _, a := range addresses {
		if !ctx.IsSliceAddress(a) || ctx.IsNonSliceAddress(a) {
			return false
		}
	}
	return true
}
