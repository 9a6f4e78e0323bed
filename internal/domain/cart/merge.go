package cart

// Merge combines the device-local cart with the remote cart fetched on a
// sign-in transition.
//
// When the local cart is empty the remote cart is returned verbatim, the
// common case of a returning signed-in user on a fresh device. Otherwise
// the result is a keyed union: every remote line is kept as-is, and local
// lines whose ID has no remote counterpart are appended after them in
// their local order.
//
// Overlapping lines are never quantity-summed; the remote line wins
// outright. A page reload re-runs the sign-in transition with local and
// remote normally identical, so summing would double every quantity on
// each reload. The accepted cost is that a local quantity edit to a line
// that also exists remotely is dropped on the next sign-in elsewhere.
func Merge(local, remote Cart) Cart {
	if local.Empty() {
		return New(remote.Lines())
	}

	merged := remote.Lines()
	seen := make(map[string]struct{}, len(merged))
	for _, l := range merged {
		seen[l.ID] = struct{}{}
	}
	for _, l := range local.Lines() {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		merged = append(merged, l)
	}
	return New(merged)
}
