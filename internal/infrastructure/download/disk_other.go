//go:build !linux && !darwin

package download

// StatfsChecker cannot report free space on this platform
type StatfsChecker struct{}

// FreeSpace always reports unknown
func (StatfsChecker) FreeSpace(string) (int64, bool) {
	return 0, false
}
