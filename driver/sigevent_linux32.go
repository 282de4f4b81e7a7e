//go:build linux && (386 || arm || mips || mipsle)

package driver

// sigevent mirrors the kernel's struct sigevent (64 bytes).
type sigevent struct {
	value  uint32
	signo  int32
	notify int32
	pad    [13]int32
}
