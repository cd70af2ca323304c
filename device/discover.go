package device

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a device.
type Type int

const (
	// TypeHost is the fallback device backed by host goroutines.
	TypeHost Type = iota
	// TypeGPU is a GPU reported by the driver.
	TypeGPU
	// TypeStatic is a device named in configuration.
	TypeStatic
)

func (t Type) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypeGPU:
		return "gpu"
	case TypeStatic:
		return "static"
	default:
		return "unknown"
	}
}

// Device describes one execution target.
type Device struct {
	Index int
	Name  string
	// UUID is uuid.Nil when the driver does not report one.
	UUID uuid.UUID
	Type Type
	// MemoryTotal is in bytes, zero when unknown.
	MemoryTotal int64
}

// HasUUID reports whether the device carries a driver UUID.
func (d Device) HasUUID() bool {
	return d.UUID != uuid.Nil
}

func (d Device) String() string {
	if d.HasUUID() {
		return fmt.Sprintf("%s [%s] (%s)", d.Name, d.UUID, d.Type)
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Type)
}

// HostDevice is the device used when discovery finds nothing.
func HostDevice() Device {
	return Device{Index: 0, Name: "host", Type: TypeHost}
}

// Discoverer enumerates devices. An empty result is not an error.
type Discoverer interface {
	Discover(ctx context.Context) ([]Device, error)
}

// NvidiaSMIConfig configures the nvidia-smi probe.
type NvidiaSMIConfig struct {
	// Path is the nvidia-smi executable. Empty uses "nvidia-smi" from PATH.
	Path string
	// Timeout bounds one probe.
	Timeout time.Duration
}

// DefaultNvidiaSMIConfig returns a default configuration.
func DefaultNvidiaSMIConfig() NvidiaSMIConfig {
	return NvidiaSMIConfig{
		Path:    "nvidia-smi",
		Timeout: 5 * time.Second,
	}
}

// NvidiaSMI discovers GPUs by querying nvidia-smi.
type NvidiaSMI struct {
	config NvidiaSMIConfig
}

// NewNvidiaSMI creates a probe, filling in defaults for zero fields.
func NewNvidiaSMI(config NvidiaSMIConfig) *NvidiaSMI {
	if config.Path == "" {
		config.Path = "nvidia-smi"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &NvidiaSMI{config: config}
}

// Discover runs nvidia-smi and parses one device per output line.
func (n *NvidiaSMI) Discover(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, n.config.Path,
		"--query-gpu=index,name,uuid,memory.total",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: nvidia-smi: %v (stderr: %s)",
			ErrDiscoveryFailed, err, strings.TrimSpace(stderr.String()))
	}

	return parseNvidiaSMIOutput(stdout.String())
}

// parseNvidiaSMIOutput parses "index, name, uuid, memory.total" CSV rows.
func parseNvidiaSMIOutput(output string) ([]Device, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(output))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var devices []Device
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse CSV: %v", ErrDiscoveryFailed, err)
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("%w: unexpected field count: got %d, expected 4",
				ErrDiscoveryFailed, len(record))
		}

		index, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: parse index: %v", ErrDiscoveryFailed, err)
		}

		// nvidia-smi prefixes UUIDs with "GPU-"; an unparsable UUID is
		// reported as absent rather than failing discovery.
		id, err := uuid.Parse(strings.TrimPrefix(strings.TrimSpace(record[2]), "GPU-"))
		if err != nil {
			id = uuid.Nil
		}

		var memTotal int64
		if mib, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64); err == nil {
			const mibToBytes = 1024 * 1024
			memTotal = int64(mib * mibToBytes)
		}

		devices = append(devices, Device{
			Index:       index,
			Name:        strings.TrimSpace(record[1]),
			UUID:        id,
			Type:        TypeGPU,
			MemoryTotal: memTotal,
		})
	}
	return devices, nil
}

// Static returns a fixed device list. It is used for configured device
// names and in tests.
type Static struct {
	Devices []Device
	Err     error
}

// StaticFromNames builds a Static discoverer with one device per name.
func StaticFromNames(names []string) *Static {
	s := &Static{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.Devices = append(s.Devices, Device{Index: len(s.Devices), Name: name, Type: TypeStatic})
	}
	return s
}

// Discover returns the configured devices or error.
func (s *Static) Discover(context.Context) ([]Device, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]Device(nil), s.Devices...), nil
}
