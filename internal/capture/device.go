package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Sentinel errors returned by device selection. Both are fatal: the pipeline
// must not start without a working input device.
var (
	ErrDeviceNotFound  = errors.New("input device not found")
	ErrNoDefaultDevice = errors.New("no default input device available")
)

// Device describes one audio input device.
type Device struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsDefault         bool    `json:"is_default"`
}

// ListDevices enumerates all devices that can capture audio. The caller does
// not need to hold a capture source; the PortAudio runtime is initialized for
// the duration of the call.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio runtime: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	def, _ := portaudio.DefaultInputDevice()

	var devices []Device
	for _, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		devices = append(devices, Device{
			Index:             info.Index,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefault:         def != nil && info.Index == def.Index,
		})
	}

	return devices, nil
}

// selectDevice resolves a device selector against the available inputs. An
// empty selector picks the system default. A numeric selector picks by index.
// Anything else is a case-insensitive substring match on device names;
// the first match wins.
func selectDevice(selector string) (*portaudio.DeviceInfo, error) {
	if selector == "" {
		def, err := portaudio.DefaultInputDevice()
		if err != nil || def == nil {
			return nil, ErrNoDefaultDevice
		}
		return def, nil
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		for _, info := range infos {
			if info.Index == idx && info.MaxInputChannels > 0 {
				return info, nil
			}
		}
		return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, idx)
	}

	needle := strings.ToLower(selector)
	for _, info := range infos {
		if info.MaxInputChannels > 0 && strings.Contains(strings.ToLower(info.Name), needle) {
			return info, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, selector)
}
