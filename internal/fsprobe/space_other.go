//go:build !unix

package fsprobe

func AvailableSpace(dir string) (uint64, bool) {
	return 0, false
}
