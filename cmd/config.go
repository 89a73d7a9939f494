// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the command line flags. Zero values leave the flag
// default in place.
type fileConfig struct {
	Transport   string `yaml:"transport"`
	Iface       string `yaml:"iface"`
	RX          string `yaml:"rx"`
	TX          string `yaml:"tx"`
	Baud        int    `yaml:"baud"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	Strict      bool   `yaml:"strict"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
	LogFile     string `yaml:"log_file"`

	Poll pollFileConfig `yaml:"poll"`
}

type pollFileConfig struct {
	List       string `yaml:"list"`
	IntervalMS int    `yaml:"interval_ms"`
	Mode       string `yaml:"mode"`
	Record     string `yaml:"record"`
	History    int    `yaml:"history"`
}

// parseConfig decodes a YAML config, rejecting unknown keys
func parseConfig(r io.Reader) (*fileConfig, error) {
	var cfg fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// loadConfig overlays the --config file onto flags the user did not set
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return nil
	}

	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseConfig(f)
	if err != nil {
		return fmt.Errorf("%s: %w", configPath, err)
	}

	if err := cfg.apply(cmd.Flags()); err != nil {
		return fmt.Errorf("%s: %w", configPath, err)
	}
	log.Printf("Loaded config from %s", configPath)
	return nil
}

// apply sets every non-zero config value whose flag was not given
func (c *fileConfig) apply(flags *pflag.FlagSet) error {
	values := []struct {
		flag  string
		value string
		set   bool
	}{
		{"transport", c.Transport, c.Transport != ""},
		{"iface", c.Iface, c.Iface != ""},
		{"rx", c.RX, c.RX != ""},
		{"tx", c.TX, c.TX != ""},
		{"baud", strconv.Itoa(c.Baud), c.Baud != 0},
		{"timeout", strconv.Itoa(c.TimeoutMS), c.TimeoutMS != 0},
		{"strict", strconv.FormatBool(c.Strict), c.Strict},
		{"username", c.Username, c.Username != ""},
		{"no-ssl-verify", strconv.FormatBool(c.NoSSLVerify), c.NoSSLVerify},
		{"log-file", c.LogFile, c.LogFile != ""},
		{"list", c.Poll.List, c.Poll.List != ""},
		{"interval", strconv.Itoa(c.Poll.IntervalMS), c.Poll.IntervalMS != 0},
		{"mode", c.Poll.Mode, c.Poll.Mode != ""},
		{"record", c.Poll.Record, c.Poll.Record != ""},
		{"history", strconv.Itoa(c.Poll.History), c.Poll.History != 0},
	}

	for _, v := range values {
		if !v.set {
			continue
		}
		f := flags.Lookup(v.flag)
		if f == nil || f.Changed {
			// Not a flag of this command, or overridden on the command line
			continue
		}
		if err := f.Value.Set(v.value); err != nil {
			return fmt.Errorf("%s: %w", v.flag, err)
		}
	}
	return nil
}

// parseCANID parses a hexadecimal CAN identifier with optional 0x prefix
func parseCANID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil || id > 0x1FFFFFFF {
		return 0, fmt.Errorf("invalid CAN identifier %q", s)
	}
	return uint32(id), nil
}
