package ecflash

// sizeParam is the EC parameter that reports whether the flash is the
// larger of the two known sizes.
const sizeParam = 0xE5

// projectStrIndex and versionStrIndex are the GetStr indices for the
// project code and firmware version strings.
const (
	projectStrIndex = 0x92
	versionStrIndex = 0x93
)

// LiveEC queries identity from a running EC over its command/status
// channel.
type LiveEC struct {
	Channel Channel
	Primary bool
}

// NewLiveEC probes the Super-I/O chip ID and opens channel (0-3) as a
// LiveEC. Primary marks channel 1, the ISP channel; only the primary
// channel's firmware endpoint reports the larger flash size.
func NewLiveEC(channel int) (*LiveEC, error) {
	if _, err := probeSuperIO(); err != nil {
		return nil, err
	}
	data, cmd, ok := channelPortsFor(channel)
	if !ok {
		return nil, ErrUnknownEC
	}
	c, err := NewPortChannel(data, cmd)
	if err != nil {
		return nil, err
	}
	return &LiveEC{Channel: c, Primary: channel == 1}, nil
}

func (e *LiveEC) Size() (int, error) {
	if err := e.Channel.Flush(); err != nil {
		return 0, err
	}
	if e.Primary {
		v, err := e.Channel.GetParam(sizeParam)
		if err != nil {
			return 0, err
		}
		if v == 0x80 {
			return 128 * 1024, nil
		}
	}
	return 64 * 1024, nil
}

// Project returns the project code string. A channel read failure is
// reported as an empty string rather than an error: the reporting driver's
// repeat-until-stable query treats a transient empty read as just another
// value to retry past.
func (e *LiveEC) Project() (string, error) {
	if err := e.Channel.Flush(); err != nil {
		return "", err
	}
	s, _ := e.Channel.GetStr(projectStrIndex)
	return s, nil
}

// Version returns the firmware version string with a "1." prefix. Like
// Project it swallows a channel read failure; the result is then just the
// "1." prefix.
func (e *LiveEC) Version() (string, error) {
	if err := e.Channel.Flush(); err != nil {
		return "", err
	}
	s, _ := e.Channel.GetStr(versionStrIndex)
	return "1." + s, nil
}
