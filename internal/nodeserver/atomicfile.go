// atomicfile.go is adapted from the teacher's pkg/storage/atomicfile.go
// verbatim: fragments are written write-then-rename so a concurrent
// reader never observes a partially written .frag file (spec.md §5:
// "Disk writes are atomic per fragment").
package nodeserver

import "os"

// atomicWrite writes data to path+".tmp" then renames it into place.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
