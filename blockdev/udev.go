package blockdev

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rkeyd/rkeyd/types"
)

func partitionInfo(paths *Paths, part string, logger *types.RkeydLogger) (string, string) {
	// Allow calling with either the full partition name "/dev/sda1" or just "sda1"
	if !strings.HasPrefix(part, "/dev") {
		part = "/dev/" + part
	}

	// mount entries for mounted partitions look like this:
	// /dev/sda6 / ext4 rw,relatime,errors=remount-ro,data=ordered 0 0
	var r io.ReadCloser
	r, err := os.Open(paths.ProcMounts)
	if err != nil {
		logger.Logger.Error().Str("file", paths.ProcMounts).Err(err).Msg("failed to open mounts")
		return "", ""
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		entry := parseMountEntry(line)
		if entry == nil || entry.Partition != part {
			continue
		}

		return entry.Mountpoint, entry.FilesystemType
	}
	return "", ""
}

type mountEntry struct {
	Partition      string
	Mountpoint     string
	FilesystemType string
}

func parseMountEntry(line string) *mountEntry {
	if len(line) == 0 || line[0] != '/' {
		return nil
	}
	fields := strings.Fields(line)

	if len(fields) < 4 {
		return nil
	}

	// The mountpoint may contain space, tab and newline characters, encoded
	// into the mount entry line using their octal-to-string representations.
	// '\040' encodes a space, '\011' a tab, '\012' a newline and '\\' a
	// backslash.
	mp := fields[1]
	r := strings.NewReplacer(
		"\\011", "\t", "\\012", "\n", "\\040", " ", "\\\\", "\\",
	)
	mp = r.Replace(mp)

	return &mountEntry{
		Partition:      fields[0],
		Mountpoint:     mp,
		FilesystemType: fields[2],
	}
}

func diskUUID(paths *Paths, partitionPath string, logger *types.RkeydLogger) string {
	info, err := udevInfoPartition(paths, partitionPath, logger)
	if err != nil {
		return UNKNOWN
	}

	if id, ok := info["ID_PART_TABLE_UUID"]; ok {
		return id
	}

	return UNKNOWN
}

// partFSUUID returns the filesystem UUID of a partition, the one mkfs
// stamped on it and the one key devices are configured by. Falls back to
// the partition entry UUID for filesystems udev has no ID_FS_UUID for.
func partFSUUID(paths *Paths, partitionPath string, logger *types.RkeydLogger) string {
	info, err := udevInfoPartition(paths, partitionPath, logger)
	if err != nil {
		return UNKNOWN
	}

	if id, ok := info["ID_FS_UUID"]; ok {
		return id
	}
	if id, ok := info["ID_PART_ENTRY_UUID"]; ok {
		return id
	}
	return UNKNOWN
}

// partFSTypeUdev gets the filesystem type from the udev database directly and its only used as fallback when
// the partition is not mounted, so we cannot get the type from paths.ProcMounts via partitionInfo.
func partFSTypeUdev(paths *Paths, partitionPath string, logger *types.RkeydLogger) string {
	info, err := udevInfoPartition(paths, partitionPath, logger)
	if err != nil {
		return UNKNOWN
	}

	if pType, ok := info["ID_FS_TYPE"]; ok {
		return pType
	}
	return UNKNOWN
}

func partFSLabel(paths *Paths, partitionPath string, logger *types.RkeydLogger) string {
	info, err := udevInfoPartition(paths, partitionPath, logger)
	if err != nil {
		return UNKNOWN
	}

	if label, ok := info["ID_FS_LABEL"]; ok {
		return label
	}
	return UNKNOWN
}

func udevInfoPartition(paths *Paths, partitionPath string, logger *types.RkeydLogger) (map[string]string, error) {
	// Get device major:minor numbers
	devNo, err := os.ReadFile(filepath.Join(paths.SysBlock, partitionPath, "dev"))
	if err != nil {
		logger.Logger.Debug().Err(err).Str("path", filepath.Join(paths.SysBlock, partitionPath, "dev")).Msg("failed to read device number")
		return nil, err
	}
	return UdevInfo(paths, string(devNo), logger)
}

// UdevInfo will return information on udev database about a device number.
func UdevInfo(paths *Paths, devNo string, logger *types.RkeydLogger) (map[string]string, error) {
	// Look up block device in udev runtime database
	udevID := "b" + strings.TrimSpace(devNo)
	udevBytes, err := os.ReadFile(filepath.Join(paths.RunUdevData, udevID))
	if err != nil {
		logger.Logger.Debug().Err(err).Str("path", filepath.Join(paths.RunUdevData, udevID)).Msg("failed to read udev info for device")
		return nil, err
	}

	udevInfo := make(map[string]string)
	for _, udevLine := range strings.Split(string(udevBytes), "\n") {
		if strings.HasPrefix(udevLine, "E:") {
			if s := strings.SplitN(udevLine[2:], "=", 2); len(s) == 2 {
				udevInfo[s[0]] = s[1]
			}
		}
	}
	return udevInfo, nil
}
