package capture

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// AnyDevice is the pseudo-device capturing on every interface.
const AnyDevice = "any"

// Open starts a live capture described by cfg. Frames are delivered
// without buffering delay, and each read gives up after cfg.PollInterval
// so a stop request is observed promptly.
func Open(cfg Config) (*Session, error) {
	device := cfg.Interface
	if device == "" {
		device = AnyDevice
	}

	inactive, err := pcap.NewInactiveHandle(device)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, device, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(cfg.SnapLen); err != nil {
		return nil, fmt.Errorf("%w %s: snaplen: %v", ErrOpen, device, err)
	}
	if err := inactive.SetPromisc(promiscuous(device, cfg.Promiscuous)); err != nil {
		return nil, fmt.Errorf("%w %s: promiscuous: %v", ErrOpen, device, err)
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("%w %s: immediate mode: %v", ErrOpen, device, err)
	}
	if err := inactive.SetTimeout(cfg.PollInterval); err != nil {
		return nil, fmt.Errorf("%w %s: timeout: %v", ErrOpen, device, err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpen, device, err)
	}

	if cfg.Filter != "" {
		insns, err := handle.CompileBPFFilter(cfg.Filter)
		if err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w %q: %v", ErrFilterCompile, cfg.Filter, err)
		}
		if err := handle.SetBPFInstructionFilter(insns); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w %q: %v", ErrFilterInstall, cfg.Filter, err)
		}
	}

	return NewSession(pcapSource{handle}), nil
}

// promiscuous reports whether device should be put in promiscuous mode.
// Linux cannot do that on the "any" pseudo-device, and activation fails
// with a warning gopacket treats as an error, so the request is dropped.
func promiscuous(device string, want bool) bool {
	if want && device == AnyDevice {
		slog.Debug("promiscuous mode not supported on the any device, capturing without it")
		return false
	}
	return want
}

type pcapSource struct {
	*pcap.Handle
}

func (s pcapSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.Handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}
