package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "cardbasic.json"

// maxSerialDirectory matches storage.MaxSerialSize.
const maxSerialDirectory = 1 << 16

// DisplayConfig describes the character panel.
type DisplayConfig struct {
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`
	OutputMode string `json:"outputMode"` // auto, utf8 or cp437
}

// KeyboardConfig holds the translator timing, in polls.
type KeyboardConfig struct {
	LongThreshold  uint `json:"longThreshold"`
	PollIntervalMs int  `json:"pollIntervalMs"`
	RepeatDelay    uint `json:"repeatDelay"` // 0 disables auto-repeat
	RepeatRate     uint `json:"repeatRate"`
}

// StorageConfig locates the program slot and the file directory images.
// When SerialPort is set the directory lives on an external EEPROM reached
// through a serial bridge instead of DirectoryPath.
type StorageConfig struct {
	SlotPath         string `json:"slotPath"`
	SlotSize         int    `json:"slotSize"`
	DirectoryEnabled bool   `json:"directoryEnabled"`
	DirectoryPath    string `json:"directoryPath"`
	DirectorySize    int    `json:"directorySize"`
	SerialPort       string `json:"serialPort,omitempty"`
	SerialBaud       uint   `json:"serialBaud"`
}

// SSHConfig controls the remote console service.
type SSHConfig struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	HostKeyPath string `json:"hostKeyPath"`
	MaxSessions int    `json:"maxSessions"`
	Password    string `json:"password,omitempty"` // empty accepts any client
	// LegacyAlgorithms enables the older key exchanges and ciphers retro
	// terminal clients need.
	LegacyAlgorithms bool `json:"legacyAlgorithms"`
}

// TelnetConfig controls the telnet console service for clients without
// SSH. Telnet sessions count against ssh.maxSessions.
type TelnetConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// InterpreterConfig names an external interpreter run on a pseudo-terminal.
// An empty Command selects the built-in monitor.
type InterpreterConfig struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// Config is the appliance configuration read from cardbasic.json.
type Config struct {
	Display       DisplayConfig     `json:"display"`
	Keyboard      KeyboardConfig    `json:"keyboard"`
	BlinkPeriodMs int               `json:"blinkPeriodMs"`
	ProgramSize   int               `json:"programSize"`
	Storage       StorageConfig     `json:"storage"`
	Buzzer        bool              `json:"buzzer"`
	SSH           SSHConfig         `json:"ssh"`
	Telnet        TelnetConfig      `json:"telnet"`
	Interpreter   InterpreterConfig `json:"interpreter"`
	Debug         bool              `json:"debug"`
}

// Default returns the configuration of the stock board: a 21x4 panel, a
// 1 KiB program slot and a 32 KiB external directory.
func Default() Config {
	return Config{
		Display: DisplayConfig{
			Rows:       4,
			Cols:       21,
			OutputMode: "auto",
		},
		Keyboard: KeyboardConfig{
			LongThreshold:  100,
			PollIntervalMs: 5,
		},
		BlinkPeriodMs: 500,
		ProgramSize:   1024,
		Storage: StorageConfig{
			SlotPath:         filepath.Join("data", "slot.bin"),
			SlotSize:         1024,
			DirectoryEnabled: true,
			DirectoryPath:    filepath.Join("data", "directory.bin"),
			DirectorySize:    32768,
			SerialBaud:       115200,
		},
		Buzzer: false,
		SSH: SSHConfig{
			Enabled:     false,
			Host:        "0.0.0.0",
			Port:        2222,
			HostKeyPath: filepath.Join("data", "ssh_host_ed25519_key"),
			MaxSessions: 4,
		},
		Telnet: TelnetConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    2323,
		},
	}
}

// Load reads cardbasic.json from configPath. A missing file yields the
// defaults; a malformed one yields the defaults and an error.
func Load(configPath string) (Config, error) {
	filePath := filepath.Join(configPath, FileName)
	log.Printf("INFO: Loading configuration from %s", filePath)

	defaultConfig := Default()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: %s not found at %s. Using default settings.", FileName, filePath)
			return defaultConfig, nil
		}
		return defaultConfig, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	// Initialize with defaults before unmarshalling
	config := defaultConfig
	if err := json.Unmarshal(data, &config); err != nil {
		log.Printf("ERROR: Failed to parse config JSON from %s: %v. Using default settings.", filePath, err)
		return defaultConfig, fmt.Errorf("failed to parse config JSON from %s: %w", filePath, err)
	}

	log.Printf("INFO: Successfully loaded configuration from %s", filePath)
	return config, nil
}

// Save writes cfg to cardbasic.json in configPath.
func Save(configPath string, cfg Config) error {
	filePath := filepath.Join(configPath, FileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configPath, err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", filePath, err)
	}
	return nil
}

// Validate reports every setting the appliance cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Display.Rows < 2 || c.Display.Cols < 8 {
		errs = append(errs, fmt.Errorf("display %dx%d is too small (minimum 8x2)", c.Display.Cols, c.Display.Rows))
	}
	switch c.Display.OutputMode {
	case "", "auto", "utf8", "utf-8", "cp437":
	default:
		errs = append(errs, fmt.Errorf("unknown output mode %q", c.Display.OutputMode))
	}
	if c.Keyboard.LongThreshold < 2 {
		errs = append(errs, fmt.Errorf("keyboard.longThreshold %d must be at least 2", c.Keyboard.LongThreshold))
	}
	if c.Keyboard.PollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("keyboard.pollIntervalMs %d must be positive", c.Keyboard.PollIntervalMs))
	}
	if c.Keyboard.RepeatDelay > 0 && c.Keyboard.RepeatRate == 0 {
		errs = append(errs, errors.New("keyboard.repeatRate must be positive when repeatDelay is set"))
	}
	if c.BlinkPeriodMs <= 0 {
		errs = append(errs, fmt.Errorf("blinkPeriodMs %d must be positive", c.BlinkPeriodMs))
	}
	if c.ProgramSize <= 0 {
		errs = append(errs, fmt.Errorf("programSize %d must be positive", c.ProgramSize))
	}
	// slot header is 3 bytes
	if c.Storage.SlotSize < 4 {
		errs = append(errs, fmt.Errorf("storage.slotSize %d cannot hold a program", c.Storage.SlotSize))
	}
	// one record with a 1-byte name plus both terminators
	if c.Storage.DirectoryEnabled && c.Storage.DirectorySize < 9 {
		errs = append(errs, fmt.Errorf("storage.directorySize %d cannot hold a record", c.Storage.DirectorySize))
	}
	// the serial bridge carries 16-bit addresses
	if c.Storage.DirectoryEnabled && c.Storage.SerialPort != "" && c.Storage.DirectorySize > maxSerialDirectory {
		errs = append(errs, fmt.Errorf("storage.directorySize %d exceeds the %d bytes a serial directory can address",
			c.Storage.DirectorySize, maxSerialDirectory))
	}
	if c.Storage.DirectoryEnabled && c.Storage.SerialPort == "" && samePath(c.Storage.SlotPath, c.Storage.DirectoryPath) {
		errs = append(errs, fmt.Errorf("storage.slotPath and storage.directoryPath are both %s", c.Storage.SlotPath))
	}
	if c.SSH.Enabled && (c.SSH.Port <= 0 || c.SSH.Port > 65535) {
		errs = append(errs, fmt.Errorf("ssh.port %d out of range", c.SSH.Port))
	}
	if c.Remote() && c.SSH.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("ssh.maxSessions %d must be positive", c.SSH.MaxSessions))
	}
	if c.Telnet.Enabled {
		if c.Telnet.Port <= 0 || c.Telnet.Port > 65535 {
			errs = append(errs, fmt.Errorf("telnet.port %d out of range", c.Telnet.Port))
		}
		if c.SSH.Enabled && c.SSH.Port == c.Telnet.Port && c.SSH.Host == c.Telnet.Host {
			errs = append(errs, fmt.Errorf("ssh and telnet both use %s:%d", c.SSH.Host, c.SSH.Port))
		}
	}
	return errors.Join(errs...)
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// Remote reports whether any network console is enabled. Without one the
// appliance runs on the controlling terminal.
func (c Config) Remote() bool { return c.SSH.Enabled || c.Telnet.Enabled }

// PollInterval returns the keyboard poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Keyboard.PollIntervalMs) * time.Millisecond
}

// BlinkPeriod returns the cursor and LED blink half-period.
func (c Config) BlinkPeriod() time.Duration {
	return time.Duration(c.BlinkPeriodMs) * time.Millisecond
}
