package loader

var (
	// apps holds the static application set handed over by the boot
	// sequence. The set is fixed for the lifetime of the kernel.
	apps [][]byte
)

// SetApps registers the static set of packed application images. It is
// called exactly once during boot, before task management starts.
func SetApps(images [][]byte) {
	apps = images
}

// AppCount returns the number of registered applications.
func AppCount() int {
	return len(apps)
}

// AppImage returns the packed image of the application with the given
// index.
func AppImage(index int) []byte {
	return apps[index]
}
