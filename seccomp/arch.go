package seccomp

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupportedArch indicates no filter can be synthesized for the running
// CPU architecture. It is fatal by design: an unrecognized architecture must
// never result in an unfiltered process.
var ErrUnsupportedArch = errors.New("seccomp: unsupported architecture")

// Arch identifies a target CPU architecture for filter synthesis. Values
// follow GOARCH naming.
type Arch string

// Supported architectures.
const (
	ArchAMD64 Arch = "amd64"
	ArchARM64 Arch = "arm64"
)

// DetectArch returns the architecture of the running process. The filter
// target is always detected, never user-supplied, so a malicious argument
// cannot select a weaker filter.
func DetectArch() Arch {
	return Arch(runtime.GOARCH)
}

// archSpec holds the architecture-specific constants used by the filter.
type archSpec struct {
	// auditArch is the AUDIT_ARCH_* token the kernel places in
	// seccomp_data.arch.
	auditArch uint32

	// nrIoctl is the ioctl syscall number under this architecture's native
	// calling convention.
	nrIoctl uint32

	// hasX32 reports whether the architecture offers a secondary 32-bit
	// syscall numbering over 64-bit mode (the x32 ABI). The same numeric
	// syscall slot means a different syscall across the two conventions, so
	// the filter must reject x32 calls before comparing syscall numbers.
	hasX32 bool

	// linuxName is the kernel's name for the architecture, used in
	// persisted artifact filenames.
	linuxName string
}

// Audit architecture tokens (AUDIT_ARCH_*).
const (
	auditArchX86_64  = 0xc000003e
	auditArchAarch64 = 0xc00000b7
)

// specFor returns the constants for the given architecture. An unrecognized
// architecture is a hard configuration error: it must never result in an
// unfiltered process.
func specFor(arch Arch) (archSpec, error) {
	switch arch {
	case ArchAMD64:
		return archSpec{
			auditArch: auditArchX86_64,
			nrIoctl:   16,
			hasX32:    true,
			linuxName: "x86_64",
		}, nil
	case ArchARM64:
		return archSpec{
			auditArch: auditArchAarch64,
			nrIoctl:   29,
			hasX32:    false,
			linuxName: "aarch64",
		}, nil
	default:
		return archSpec{}, fmt.Errorf("%w: %q", ErrUnsupportedArch, arch)
	}
}
