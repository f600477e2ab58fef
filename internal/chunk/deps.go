package chunk

import (
	"io/fs"
	"os"
)

// fileWriter writes and removes scratch files.
type fileWriter interface {
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Remove(name string) error
}

// osFileWriter implements fileWriter using the os package.
type osFileWriter struct{}

func (osFileWriter) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (osFileWriter) Remove(name string) error {
	return os.Remove(name)
}
