package config

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DirectoryCheck is the outcome of probing one configured directory.
type DirectoryCheck struct {
	Name   string
	Path   string
	Passed bool
	Detail string
}

// CheckDirectories verifies that the state and log directories exist and are
// readable and writable by the current user.
func (c *Config) CheckDirectories() []DirectoryCheck {
	return []DirectoryCheck{
		checkDirectoryAccess("data_dir", c.Paths.DataDir),
		checkDirectoryAccess("log_dir", c.Paths.LogDir),
	}
}

func checkDirectoryAccess(name, path string) DirectoryCheck {
	result := DirectoryCheck{Name: name, Path: path}
	if path == "" {
		result.Detail = "not configured"
		return result
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Detail = "does not exist"
			return result
		}
		result.Detail = fmt.Sprintf("stat: %v", err)
		return result
	}
	if !info.IsDir() {
		result.Detail = "is not a directory"
		return result
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		result.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return result
	}
	result.Passed = true
	result.Detail = "read/write ok"
	return result
}
