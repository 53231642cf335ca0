// Package blockdev scans /sys/block and the udev runtime database for
// disks and partitions. It exists so the device provider can resolve a
// configured filesystem UUID to a /dev path without shelling out to
// blkid, which is not guaranteed to be present in early boot.
package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rkeyd/rkeyd/types"
)

const (
	sectorSize = 512
	UNKNOWN    = "unknown"
)

type Paths struct {
	SysBlock    string
	RunUdevData string
	ProcMounts  string
}

func NewPaths(withOptionalPrefix string) *Paths {
	p := &Paths{
		SysBlock:    "/sys/block/",
		RunUdevData: "/run/udev/data",
		ProcMounts:  "/proc/mounts",
	}

	// Allow overriding the paths via env var. It has precedence over anything
	val, exists := os.LookupEnv("RKEYD_CHROOT")
	if exists {
		val = strings.TrimSuffix(val, "/")
		p.SysBlock = fmt.Sprintf("%s%s", val, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", val, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", val, p.ProcMounts)
		return p
	}

	if withOptionalPrefix != "" {
		withOptionalPrefix = strings.TrimSuffix(withOptionalPrefix, "/")
		p.SysBlock = fmt.Sprintf("%s%s", withOptionalPrefix, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", withOptionalPrefix, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", withOptionalPrefix, p.ProcMounts)
	}
	return p
}

// GetDisks returns all disks with their partitions.
func GetDisks(paths *Paths, logger *types.RkeydLogger) []*types.Disk {
	if logger == nil {
		newLogger := types.NewNullLogger()
		logger = &newLogger
	}
	disks := make([]*types.Disk, 0)
	logger.Logger.Debug().Str("path", paths.SysBlock).Msg("Scanning for disks")
	files, err := os.ReadDir(paths.SysBlock)
	if err != nil {
		return nil
	}
	for _, file := range files {
		dname := file.Name()
		logger.Logger.Debug().Str("file", dname).Msg("Reading disk entry")
		size := diskSizeBytes(paths, dname, logger)

		if strings.HasPrefix(dname, "loop") && size == 0 {
			// We don't care about unused loop devices...
			continue
		}
		d := &types.Disk{
			Name:       dname,
			SizeBytes:  size,
			UUID:       diskUUID(paths, dname, logger),
			Partitions: getPartitions(paths, dname, logger),
		}
		disks = append(disks, d)
	}

	return disks
}

// FindPartitionByFSUUID resolves a filesystem UUID to a partition, or nil
// when no attached device carries it. An absent device is a normal
// condition for removable key media, so there is no error return.
func FindPartitionByFSUUID(paths *Paths, uuid string, logger *types.RkeydLogger) *types.Partition {
	if uuid == "" {
		return nil
	}
	for _, disk := range GetDisks(paths, logger) {
		for _, part := range disk.Partitions {
			if strings.EqualFold(part.UUID, uuid) {
				return part
			}
		}
	}
	return nil
}

func getPartitions(paths *Paths, diskName string, logger *types.RkeydLogger) types.PartitionList {
	out := make(types.PartitionList, 0)
	path := filepath.Join(paths.SysBlock, diskName)
	files, err := os.ReadDir(path)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to read disk partitions")
		return out
	}
	for _, file := range files {
		fname := file.Name()
		if !strings.HasPrefix(fname, diskName) {
			continue
		}
		logger.Logger.Debug().Str("file", fname).Msg("Reading partition entry")
		partitionPath := filepath.Join(diskName, fname)
		size := partitionSizeBytes(paths, partitionPath, logger)
		mp, pt := partitionInfo(paths, fname, logger)
		if pt == "" {
			pt = partFSTypeUdev(paths, partitionPath, logger)
		}
		p := &types.Partition{
			Name:            fname,
			Size:            uint(size / (1024 * 1024)),
			MountPoint:      mp,
			UUID:            partFSUUID(paths, partitionPath, logger),
			FilesystemLabel: partFSLabel(paths, partitionPath, logger),
			FS:              pt,
			Path:            filepath.Join("/dev", fname),
			Disk:            filepath.Join("/dev", diskName),
		}
		out = append(out, p)
	}
	return out
}

func diskSizeBytes(paths *Paths, disk string, logger *types.RkeydLogger) uint64 {
	// We can find the number of 512-byte sectors by examining the contents of
	// /sys/block/$DEVICE/size and calculate the physical bytes accordingly.
	path := filepath.Join(paths.SysBlock, disk, "size")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Msg("Failed to read file")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Str("content", string(contents)).Msg("Failed to parse size")
		return 0
	}
	return size * sectorSize
}

func partitionSizeBytes(paths *Paths, partitionPath string, logger *types.RkeydLogger) uint64 {
	path := filepath.Join(paths.SysBlock, partitionPath, "size")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Error().Str("file", path).Err(err).Msg("failed to read partition size")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("contents", string(contents)).Err(err).Msg("failed to parse partition size")
		return 0
	}
	return size * sectorSize
}
