//go:build linux

package hardware

import "golang.org/x/sys/unix"

func platformInfo() (System, Memory) {
	var sys System
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		sys.KernelRelease = unix.ByteSliceToString(uts.Release[:])
		sys.Machine = unix.ByteSliceToString(uts.Machine[:])
	}

	var mem Memory
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		unit := uint64(info.Unit)
		if unit == 0 {
			unit = 1
		}
		mem.TotalBytes = uint64(info.Totalram) * unit
	}
	return sys, mem
}
