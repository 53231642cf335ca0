package types

import (
	"io/fs"
	"os"
)

// FS is our interface for methods that need a filesystem. It is a subset
// of what twpayne/go-vfs provides, so vfs.OSFS can be passed in production
// and a vfst test filesystem in tests.
type FS interface {
	Open(name string) (fs.File, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(filename string) ([]byte, error)
	ReadDir(dirname string) ([]fs.DirEntry, error)
	Mkdir(name string, perm os.FileMode) error
	OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	Remove(name string) error
	RemoveAll(path string) error
}
