// Copyright 2024 The uStack Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux

// Package tundev contains methods to open and drive Linux TAP and TUN
// devices. A TUN device delivers raw IPv6 packets and a TAP device delivers
// ethernet frames, matching the two input-path media.
package tundev

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open TUN or TAP device.
type Device struct {
	fd   int
	name string
	mtu  uint32
}

// Open opens the named TUN device and sets it to non-blocking mode. Frames
// read from it are raw IPv6 packets without link-layer framing.
func Open(name string) (*Device, error) {
	return open(name, unix.IFF_TUN|unix.IFF_NO_PI)
}

// OpenTAP opens the named TAP device and sets it to non-blocking mode. Frames
// read from it carry an ethernet header.
func OpenTAP(name string) (*Device, error) {
	return open(name, unix.IFF_TAP|unix.IFF_NO_PI)
}

func open(name string, flags uint16) (*Device, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/net/tun: %w", err)
	}

	var ifr struct {
		name  [16]byte
		flags uint16
		_     [22]byte
	}

	copy(ifr.name[:], name)
	ifr.flags = flags
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.TUNSETIFF, uintptr(unsafe.Pointer(&ifr)))
	if errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("ioctl TUNSETIFF %q: %w", name, errno)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	mtu, err := getMTU(name)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Device{fd: fd, name: name, mtu: mtu}, nil
}

// getMTU determines the MTU of a network interface device.
func getMTU(name string) (uint32, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)

	var ifreq struct {
		name [16]byte
		mtu  int32
		_    [20]byte
	}

	copy(ifreq.name[:], name)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCGIFMTU, uintptr(unsafe.Pointer(&ifreq)))
	if errno != 0 {
		return 0, fmt.Errorf("ioctl SIOCGIFMTU %q: %w", name, errno)
	}

	return uint32(ifreq.mtu), nil
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// MTU returns the MTU of the device as read at open time.
func (d *Device) MTU() uint32 {
	return d.mtu
}

// Read reads one frame into b. The descriptor is non-blocking; if no frame is
// available, Read blocks in poll() until one is.
func (d *Device) Read(b []byte) (int, error) {
	for {
		n, err := unix.Read(d.fd, b)
		if err == nil {
			return n, nil
		}
		if err != unix.EAGAIN && err != unix.EINTR {
			return 0, err
		}

		pfd := []unix.PollFd{{
			Fd:     int32(d.fd),
			Events: unix.POLLIN,
		}}
		if _, err := unix.Poll(pfd, -1); err != nil && err != unix.EINTR {
			return 0, err
		}
	}
}

// Write writes one frame held in b to the device. It fails if the frame is
// only partially written.
func (d *Device) Write(b []byte) error {
	n, err := unix.Write(d.fd, b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("partial write to %q: %d of %d bytes", d.name, n, len(b))
	}
	return nil
}

// Close closes the device.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}
