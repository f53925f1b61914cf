//go:build linux && arm64

package sandbox

// arm64 has no legacy open/access/stat family; programs built for it use
// the *at variants, which the policy allow-list must name explicitly.
var syscallsArch = map[string]uint32{}
