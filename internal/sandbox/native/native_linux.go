//go:build linux

package native

import (
	"os"
	"os/exec"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// reexecSentinel is recognized by ReexecEntrypoint, which must be called
// first thing in func main() by any binary that links this package. It lets
// the native backend apply NO_NEW_PRIVS and a minimal seccomp filter to the
// child process between fork and exec, something os/exec's SysProcAttr
// cannot express directly on Linux.
const reexecSentinel = "__goclaw_native_sandbox_exec__"

// linuxSandbox applies NO_NEW_PRIVS plus a minimal seccomp-bpf filter via
// a self re-exec, since Go cannot run arbitrary code between fork and exec
// through os/exec alone.
type linuxSandbox struct{}

func newPlatformSandbox() platformSandbox {
	return linuxSandbox{}
}

func (linuxSandbox) Wrap(req RunRequest, argv []string) ([]string, func(), error) {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	wrapped := append([]string{self, reexecSentinel}, argv...)
	return wrapped, nil, nil
}

// ReexecEntrypoint must be called at the very top of main(), before flag
// parsing. When the process was launched as the sandbox re-exec helper it
// applies NO_NEW_PRIVS and the seccomp filter, then execs the real target
// and never returns; otherwise it returns immediately.
func ReexecEntrypoint() {
	if len(os.Args) < 2 || os.Args[1] != reexecSentinel {
		return
	}
	// Seccomp filters are per-thread; pin so the thread that installed the
	// filter is the one that execs and carries it into the target.
	runtime.LockOSThread()
	applyNoNewPrivs()
	applyMinimalSeccomp()

	target := os.Args[2:]
	if len(target) == 0 {
		os.Exit(127)
	}
	path, err := exec.LookPath(target[0])
	if err != nil {
		os.Exit(127)
	}
	_ = unix.Exec(path, target, os.Environ())
	os.Exit(127)
}

func applyNoNewPrivs() {
	_ = unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0)
}

// BPF opcodes from linux/bpf_common.h, hand-assembled here since the
// dependency set carries no BPF-assembler package (the x/net/bpf builder
// targets classic socket filters, not PR_SET_SECCOMP's seccomp_data layout).
const (
	bpfLd  = 0x00
	bpfW   = 0x00
	bpfAbs = 0x20
	bpfJmp = 0x05
	bpfJeq = 0x10
	bpfK   = 0x00
	bpfRet = 0x06
)

const seccompRetAllow = 0x7fff0000
const seccompRetKill = 0x00000000

// seccompNROffset is the byte offset of the syscall number within
// struct seccomp_data on every architecture the runtime supports.
const seccompNROffset = 0

// denySyscalls are blocked outright: ptrace and process_vm_readv allow one
// process to read another's memory, defeating the point of sandboxing a
// skill alongside the host process.
var denySyscalls = []uint32{unix.SYS_PTRACE, unix.SYS_PROCESS_VM_READV}

// applyMinimalSeccomp installs a seccomp-bpf filter that denies
// cross-process introspection syscalls and allows everything else. This is
// a best-effort tier, not equivalent to landlock's filesystem-scoped
// rulesets; file access is still bounded by the sandbox's environment and
// working-directory restriction.
func applyMinimalSeccomp() {
	var filters []unix.SockFilter
	filters = append(filters, unix.SockFilter{Code: bpfLd | bpfW | bpfAbs, K: seccompNROffset})
	for _, nr := range denySyscalls {
		filters = append(filters, unix.SockFilter{Code: bpfJmp | bpfJeq | bpfK, K: nr, Jt: 0, Jf: 1})
		filters = append(filters, unix.SockFilter{Code: bpfRet | bpfK, K: seccompRetKill})
	}
	filters = append(filters, unix.SockFilter{Code: bpfRet | bpfK, K: seccompRetAllow})

	prog := unix.SockFprog{
		Len:    uint16(len(filters)),
		Filter: &filters[0],
	}
	_ = unix.Prctl(unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&prog)), 0, 0)
}
