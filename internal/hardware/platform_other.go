//go:build !linux

package hardware

func platformInfo() (System, Memory) {
	return System{}, Memory{}
}
