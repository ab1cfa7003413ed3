// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package residency

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// maxSysfsAttrSize is the page size sysfs uses for a single attribute
const maxSysfsAttrSize = 4096

// sysReadFile reads a sysfs attribute with a single read(2). Attributes
// report their size as 4096 regardless of content, so os.ReadFile would
// issue an extra read and some drivers block on it.
func sysReadFile(path string) (string, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = unix.Close(fd) }()

	buf := make([]byte, maxSysfsAttrSize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if n < 0 {
		n = 0
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

func readUint(path string) (uint64, error) {
	s, err := sysReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
