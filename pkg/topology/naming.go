package topology

import "fmt"

// Namer assigns the emulated name for a native interface given its 0-based
// position among the device's sorted native names.
type Namer interface {
	EmulatedName(platform, native string, index int) (string, error)
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(platform, native string, index int) (string, error)

func (f NamerFunc) EmulatedName(platform, native string, index int) (string, error) {
	return f(platform, native, index)
}

// DefaultEmulatedName is eth<index+1>. eth0 is left for management.
func DefaultEmulatedName(index int) string {
	return fmt.Sprintf("eth%d", index+1)
}

// DefaultNamer applies DefaultEmulatedName regardless of platform.
var DefaultNamer Namer = NamerFunc(func(_, _ string, index int) (string, error) {
	return DefaultEmulatedName(index), nil
})
