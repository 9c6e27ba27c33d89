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

package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/ustacknet/ustack/pkg/ustack/stack"
)

// Config holds the daemon configuration. Every field can be set in the TOML
// configuration file and overridden on the command line.
type Config struct {
	// Device is the name of the TUN or TAP device to attach to.
	Device string `toml:"device"`

	// Medium selects the device framing: "tun" for raw IPv6 packets or
	// "tap" for ethernet frames.
	Medium string `toml:"medium"`

	// Address is the IPv6 address answered for, in textual form.
	Address string `toml:"address"`

	// MAC is the hardware address, in the usual colon-separated form.
	MAC string `toml:"mac"`

	// LogLevel is the logrus level name, e.g. "info" or "debug".
	LogLevel string `toml:"log_level"`

	// RateLimit is the maximum number of replies per second. Zero keeps
	// the built-in default.
	RateLimit float64 `toml:"rate_limit"`

	// RateBurst is the reply burst size. Zero keeps the built-in default.
	RateBurst int `toml:"rate_burst"`
}

func defaultConfig() Config {
	return Config{
		Device:   "tun0",
		Medium:   "tun",
		Address:  "fe80::1",
		MAC:      "02:02:03:04:05:06",
		LogLevel: "info",
	}
}

// loadConfig reads the TOML file at path over the defaults in c.
func loadConfig(path string, c *Config) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %q: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// medium maps the configured medium name to the input-path medium.
func (c *Config) medium() (stack.Medium, error) {
	switch c.Medium {
	case "tun", "raw":
		return stack.MediumRaw, nil
	case "tap", "ethernet":
		return stack.MediumEthernet, nil
	default:
		return 0, fmt.Errorf("unknown medium %q, want tun or tap", c.Medium)
	}
}
