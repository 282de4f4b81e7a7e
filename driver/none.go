//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !windows && !(js && wasm)

package driver

// No native backend: Platform stays KindNone and only KindReactor can be
// constructed.
func init() {
	setPlatformDefault(KindNone)
}
