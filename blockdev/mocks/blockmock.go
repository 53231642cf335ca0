package mocks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rkeyd/rkeyd/blockdev"
	"github.com/rkeyd/rkeyd/types"
)

// BlockMock is used to construct a fake disk to present to the blockdev
// scanner. The scanner uses /sys/block, /run/udev/data and /proc/mounts to
// gather everything and has an entrypoint to override the root dir from
// which those paths are constructed, so this mock builds a fake tree in a
// chroot with all the needed files and lets the scanner do its thing.
// You can pass no disks at all to simulate a system where the configured
// key device is simply not attached.
type BlockMock struct {
	Chroot string
	paths  *blockdev.Paths
	disks  []types.Disk
	mounts []string
}

// AddDisk adds a disk to BlockMock
func (g *BlockMock) AddDisk(disk types.Disk) {
	g.disks = append(g.disks, disk)
}

// CreateDevices builds the chroot tree, sets the RKEYD_CHROOT env override
// and creates the sysfs/udev files for every disk and partition added.
func (g *BlockMock) CreateDevices() {
	d, _ := os.MkdirTemp("", "blockmock")
	g.Chroot = d
	g.paths = blockdev.NewPaths(d)
	_ = os.Setenv("RKEYD_CHROOT", d)
	_ = os.MkdirAll(g.paths.SysBlock, 0755)
	_ = os.MkdirAll(g.paths.RunUdevData, 0755)
	// Create only the /proc/ dir, we add the mounts file afterwards
	procDir, _ := filepath.Split(g.paths.ProcMounts)
	_ = os.MkdirAll(procDir, 0755)
	for indexDisk, disk := range g.disks {
		// For each disk we create the /sys/block/DISK_NAME dir
		diskPath := filepath.Join(g.paths.SysBlock, disk.Name)
		_ = os.Mkdir(diskPath, 0755)
		// The dev file indicates the device number for a given disk
		_ = os.WriteFile(filepath.Join(diskPath, "dev"), []byte(fmt.Sprintf("%d:0\n", indexDisk)), 0644)
		// Also write the size
		_ = os.WriteFile(filepath.Join(diskPath, "size"), []byte(strconv.FormatUint(disk.SizeBytes, 10)), 0644)
		// Create the udev data for this disk
		diskUdevData := []string{fmt.Sprintf("E:ID_PART_TABLE_UUID=%s\n", disk.UUID)}
		_ = os.WriteFile(filepath.Join(g.paths.RunUdevData, fmt.Sprintf("b%d:0", indexDisk)), []byte(strings.Join(diskUdevData, "")), 0644)
		for indexPart, partition := range disk.Partitions {
			// For each partition we create the /sys/block/DISK_NAME/PARTITION_NAME dir
			_ = os.Mkdir(filepath.Join(diskPath, partition.Name), 0755)
			// The dev file contains the major:minor of the partition
			_ = os.WriteFile(filepath.Join(diskPath, partition.Name, "dev"), []byte(fmt.Sprintf("%d:6%d\n", indexDisk, indexPart)), 0644)
			_ = os.WriteFile(filepath.Join(diskPath, partition.Name, "size"), []byte(fmt.Sprintf("%d\n", partition.Size)), 0644)
			// Create the /run/udev/data/bMAJOR:MINOR file to mimic the udev database
			data := []string{fmt.Sprintf("E:ID_FS_LABEL=%s\n", partition.FilesystemLabel)}
			if partition.FS != "" {
				data = append(data, fmt.Sprintf("E:ID_FS_TYPE=%s\n", partition.FS))
			}
			if partition.UUID != "" {
				data = append(data, fmt.Sprintf("E:ID_FS_UUID=%s\n", partition.UUID))
			}
			_ = os.WriteFile(filepath.Join(g.paths.RunUdevData, fmt.Sprintf("b%d:6%d", indexDisk, indexPart)), []byte(strings.Join(data, "")), 0644)
			// If we got a mountpoint, add it to our fake /proc/mounts
			if partition.MountPoint != "" {
				if partition.FS == "" {
					partition.FS = "ext4"
				}
				g.mounts = append(
					g.mounts,
					fmt.Sprintf("%s %s %s ro,relatime 0 0\n", filepath.Join("/dev", partition.Name), partition.MountPoint, partition.FS))
			}
		}
	}
	// Finally, write all the mounts
	_ = os.WriteFile(g.paths.ProcMounts, []byte(strings.Join(g.mounts, "")), 0644)
}

// RemoveDisk will remove the files for a disk. It makes no effort to check if the disk exists or not
func (g *BlockMock) RemoveDisk(disk string) {
	var newMounts []string
	diskPath := filepath.Join(g.paths.SysBlock, disk)
	_ = os.RemoveAll(diskPath)

	for _, mount := range g.mounts {
		fields := strings.Fields(mount)
		if !strings.Contains(fields[0], filepath.Join("/dev", disk)) {
			newMounts = append(newMounts, mount)
		}
	}
	g.mounts = newMounts
	_ = os.WriteFile(g.paths.ProcMounts, []byte(strings.Join(g.mounts, "")), 0644)
}

// Clean will remove the chroot dir and unset the env var
func (g *BlockMock) Clean() {
	_ = os.Unsetenv("RKEYD_CHROOT")
	_ = os.RemoveAll(g.Chroot)
	g.disks = nil
	g.mounts = nil
}
