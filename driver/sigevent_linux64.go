//go:build linux && (amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x)

package driver

// sigevent mirrors the kernel's struct sigevent (64 bytes).
type sigevent struct {
	value  uint64
	signo  int32
	notify int32
	pad    [12]int32
}
