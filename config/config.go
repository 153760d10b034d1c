// Package config loads the router's configuration file: the indirect
// sender's policy knobs (spec §6 "Configuration knobs") plus the reference
// platform's device paths, grounded on the teacher's yaml.v3-based
// device-identity file loader (src/deviceid.go).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk router configuration.
type Config struct {
	// MaxChildren caps the child-mask width and ChildTable capacity.
	MaxChildren int `yaml:"max_children"`

	// DropMessageOnFragmentTxFailure selects the fragment-tx-failure
	// policy (spec §4.3.5).
	DropMessageOnFragmentTxFailure bool `yaml:"drop_message_on_fragment_tx_failure"`

	// SupervisionMsgAckRequest controls the ack-request bit on
	// supervision frames.
	SupervisionMsgAckRequest bool `yaml:"supervision_msg_ack_request"`

	// PanID is this router's 802.15.4 PAN ID.
	PanID uint16 `yaml:"pan_id"`

	Serial    SerialConfig    `yaml:"serial"`
	Reset     ResetConfig     `yaml:"reset"`
	Announce  AnnounceConfig  `yaml:"announce"`
	PollTrace PollTraceConfig `yaml:"poll_trace"`
}

// SerialConfig describes the RCP's serial transport (platform/serialmac).
type SerialConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

// ResetConfig describes the RCP's hardware reset line (platform/resetline).
type ResetConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

// AnnounceConfig describes the mDNS border-agent advertisement
// (platform/announce).
type AnnounceConfig struct {
	InstanceName string `yaml:"instance_name"`
	Port         int    `yaml:"port"`
}

// PollTraceConfig describes the poll-trace log rotation
// (platform/polltrace).
type PollTraceConfig struct {
	Directory  string `yaml:"directory"`
	DailyNames bool   `yaml:"daily_names"`
}

// Default returns a config with conservative, always-valid defaults, used
// when no config file is given and as the base that Load fills in from the
// file.
func Default() Config {
	return Config{
		MaxChildren:                    32,
		DropMessageOnFragmentTxFailure: true,
		SupervisionMsgAckRequest:       true,
		PanID:                          0xface,
		Serial:                         SerialConfig{Device: "/dev/ttyACM0", BaudRate: 115200},
		Reset:                          ResetConfig{Chip: "gpiochip0", Line: 17},
		Announce:                       AnnounceConfig{InstanceName: "meshrouter", Port: 49191},
		PollTrace:                      PollTraceConfig{Directory: "./poll-trace", DailyNames: true},
	}
}

// Load reads and parses a YAML config file, starting from Default() so an
// incomplete file still yields valid values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.MaxChildren <= 0 || cfg.MaxChildren >= 1<<14 {
		return cfg, fmt.Errorf("config: max_children %d out of range (0, %d)", cfg.MaxChildren, 1<<14)
	}

	return cfg, nil
}
