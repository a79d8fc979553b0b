//go:build !windows

package hotkey

// Open is not supported on non-Windows builds.
func Open(opts Options) (Source, error) {
	return nil, ErrUnsupported
}
