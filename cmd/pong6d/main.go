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

// pong6d attaches the ICMPv6 input path to a TUN or TAP device and answers
// neighbor solicitations and pings for one IPv6 address.
package main

import (
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ustacknet/ustack/pkg/ustack"
	"github.com/ustacknet/ustack/pkg/ustack/header"
	"github.com/ustacknet/ustack/pkg/ustack/link/tundev"
	"github.com/ustacknet/ustack/pkg/ustack/stack"
)

var (
	configPath = flag.String("config", "", "path to a TOML configuration file")
	device     = flag.String("device", "", "TUN or TAP device to attach to")
	medium     = flag.String("medium", "", "device framing, tun or tap")
	address    = flag.String("address", "", "IPv6 address to answer for")
	mac        = flag.String("mac", "", "hardware address")
	logLevel   = flag.String("log-level", "", "log level")
)

func main() {
	flag.Parse()

	cfg := defaultConfig()
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			logrus.Fatal(err)
		}
	}
	for flagName, dst := range map[string]*string{
		"device":    &cfg.Device,
		"medium":    &cfg.Medium,
		"address":   &cfg.Address,
		"mac":       &cfg.MAC,
		"log-level": &cfg.LogLevel,
	} {
		if f := flag.Lookup(flagName); f.Value.String() != "" {
			*dst = f.Value.String()
		}
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("bad log level %q: %v", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	m, err := cfg.medium()
	if err != nil {
		log.Fatal(err)
	}

	nodeAddr, err := ustack.ParseIPv6Address(cfg.Address)
	if err != nil {
		log.Fatalf("bad address: %v", err)
	}
	linkAddr, err := ustack.ParseMACAddress(cfg.MAC)
	if err != nil {
		log.Fatalf("bad mac address: %v", err)
	}

	var dev *tundev.Device
	if m == stack.MediumEthernet {
		dev, err = tundev.OpenTAP(cfg.Device)
	} else {
		dev, err = tundev.Open(cfg.Device)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer dev.Close()

	var limiter *stack.ICMPRateLimiter
	if cfg.RateLimit > 0 && cfg.RateBurst > 0 {
		limiter = &stack.ICMPRateLimiter{Limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)}
	}

	ep, err := stack.New(stack.Options{
		NodeAddress:   nodeAddr,
		LinkAddress:   linkAddr,
		Medium:        m,
		NeighborCache: stack.NewNeighborCache(),
		RateLimiter:   limiter,
		Logger:        log,
	})
	if err != nil {
		log.Fatal(err)
	}

	log.WithFields(logrus.Fields{
		"device":  dev.Name(),
		"mtu":     dev.MTU(),
		"address": nodeAddr,
		"mac":     linkAddr,
	}).Info("answering")

	go serve(log, dev, ep)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch

	s := &ep.Stats().ICMPv6
	log.WithFields(logrus.Fields{
		"received": s.PacketsReceived.Value(),
		"sent":     s.PacketsSent.Value(),
		"dropped":  s.PacketsDropped.Value(),
	}).Info("shutting down")
}

// serve runs the read, handle, write loop over a single MTU-sized buffer.
func serve(log *logrus.Logger, dev *tundev.Device, ep *stack.Endpoint) {
	buf := make([]byte, int(dev.MTU())+header.EthernetMinimumSize)
	for {
		n, err := dev.Read(buf)
		if err != nil {
			log.Fatalf("read from %q: %v", dev.Name(), err)
		}
		out := ep.HandleInbound(buf, n)
		if out == 0 {
			continue
		}
		if err := dev.Write(buf[:out]); err != nil {
			log.Errorf("write to %q: %v", dev.Name(), err)
		}
	}
}
