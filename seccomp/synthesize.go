// Package seccomp synthesizes the minimal BPF filter that blocks the TIOCSTI
// and TIOCLINUX terminal-input-injection ioctls while allowing every other
// syscall, including all other ioctl commands.
//
// Synthesis is pure and deterministic: the same architecture always yields
// byte-identical output, so precompiled artifacts and on-the-fly synthesis
// are interchangeable.
package seccomp

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Seccomp return actions.
const (
	retKillProcess = 0x80000000 // SECCOMP_RET_KILL_PROCESS
	retErrno       = 0x00050000 // SECCOMP_RET_ERRNO
	retAllow       = 0x7fff0000 // SECCOMP_RET_ALLOW
	retDataMask    = 0x0000ffff // SECCOMP_RET_DATA
)

// Offsets into the seccomp_data input record.
const (
	offNr   = 0 // syscall number
	offArch = 4 // audit architecture token

	// offArg1Lo is the low 32 bits of args[1] (little-endian layout). Only
	// the low half of the ioctl command is compared: some kernels zero- or
	// sign-extend the high bits, which a naive 64-bit compare would let an
	// attacker use to smuggle a blocked command code past the filter.
	offArg1Lo = 24
)

// The two blocked ioctl commands. TIOCSTI injects bytes into the terminal
// input queue; TIOCLINUX exposes console manipulation including selection
// paste. Everything else is allowed.
const (
	ioctlTIOCSTI   = 0x5412
	ioctlTIOCLINUX = 0x541c
)

// x32SyscallBit marks a syscall made through the x32 ABI on x86_64.
const x32SyscallBit = 0x40000000

// errnoEPERM returns the seccomp action failing the syscall with EPERM.
func errnoEPERM() uint32 {
	return retErrno | (uint32(unix.EPERM) & retDataMask)
}

// Synthesize builds the filter program for the given architecture. The
// decision tree is:
//
//	load arch token
//	  != expected            -> kill process (architecture confusion)
//	load syscall number
//	  x32 ABI bit set        -> EPERM (amd64 only)
//	  != ioctl               -> allow
//	load low 32 bits of args[1]
//	  == TIOCSTI             -> EPERM
//	  == TIOCLINUX           -> EPERM
//	  otherwise              -> allow
//
// An unsupported architecture returns ErrUnsupportedArch via the caller's
// taxonomy; it never yields a permissive program.
func Synthesize(arch Arch) (*Program, error) {
	spec, err := specFor(arch)
	if err != nil {
		return nil, fmt.Errorf("seccomp: %w", err)
	}

	var insns []instruction

	// Architecture check. A process that presents a mismatched architecture
	// token is killed outright, not merely denied: requesting a 32-bit
	// personality to dodge a 64-bit-only filter is an attack, not an error.
	insns = append(insns,
		loadAbs(offArch),
		jumpEqual(spec.auditArch, 1, 0),
		ret(retKillProcess),
		loadAbs(offNr),
	)

	// On x86_64, reject the x32 calling convention before looking at the
	// syscall number: the same numeric slot means a different syscall there.
	if spec.hasX32 {
		insns = append(insns,
			jumpSet(x32SyscallBit, 0, 1),
			ret(errnoEPERM()),
		)
	}

	insns = append(insns,
		jumpEqual(spec.nrIoctl, 1, 0),
		ret(retAllow),
		loadAbs(offArg1Lo),
		jumpEqual(ioctlTIOCSTI, 2, 0),
		jumpEqual(ioctlTIOCLINUX, 1, 0),
		ret(retAllow),
		ret(errnoEPERM()),
	)

	return &Program{arch: arch, insns: insns}, nil
}

// precompiled caches one synthesized program per architecture for the process
// lifetime. Synthesis is deterministic, so the cache is equivalent to
// shipping prebuilt artifacts for common architectures.
var precompiled sync.Map // Arch -> *Program

// Precompiled returns the cached filter program for arch, synthesizing it on
// first use. Callers on uncommon architectures hit the same code path as the
// artifact lookup, with both verified by the same property tests.
func Precompiled(arch Arch) (*Program, error) {
	if v, ok := precompiled.Load(arch); ok {
		return v.(*Program), nil
	}
	prog, err := Synthesize(arch)
	if err != nil {
		return nil, err
	}
	actual, _ := precompiled.LoadOrStore(arch, prog)
	return actual.(*Program), nil
}

// ArtifactName returns the conventional filename for a persisted filter
// artifact, keyed by the kernel's architecture name.
func ArtifactName(arch Arch) (string, error) {
	spec, err := specFor(arch)
	if err != nil {
		return "", fmt.Errorf("seccomp: %w", err)
	}
	return "tiocsti_filter_" + spec.linuxName + ".bpf", nil
}
