package types

// Partition is a block device partition as read from /sys/block and the
// udev runtime database.
type Partition struct {
	Name            string `json:"name,omitempty" yaml:"name,omitempty"`
	FilesystemLabel string `json:"label,omitempty" yaml:"label,omitempty"`
	Size            uint   `json:"size,omitempty" yaml:"size,omitempty"`
	FS              string `json:"fs,omitempty" yaml:"fs,omitempty"`
	UUID            string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	MountPoint      string `json:"-" yaml:"-"`
	Path            string `json:"-" yaml:"-"`
	Disk            string `json:"-" yaml:"-"`
}

type PartitionList []*Partition

type Disk struct {
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	SizeBytes  uint64        `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	UUID       string        `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Partitions PartitionList `json:"partitions,omitempty" yaml:"partitions,omitempty"`
}
