package inverter

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/decode"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// analogRegisters is the size of the power/voltage/current/temperature block.
const analogRegisters = 4

// Default retry and pacing parameters.
const (
	DefaultRetryAttempts     = 3
	DefaultConnectRetryDelay = 500 * time.Millisecond
	DefaultReadRetryDelay    = 300 * time.Millisecond
	DefaultRegisterPause     = 50 * time.Millisecond
)

// Config tunes the reader's retry and pacing behaviour.
type Config struct {
	// RetryAttempts bounds the connect + analog read attempts per device.
	RetryAttempts int

	// ConnectRetryDelay is waited after a failed connect.
	ConnectRetryDelay time.Duration

	// ReadRetryDelay is waited after a failed analog read.
	ReadRetryDelay time.Duration

	// RegisterPause is waited before each fault group request to respect
	// the device's turnaround time.
	RegisterPause time.Duration
}

// DefaultConfig returns the standard retry and pacing parameters.
func DefaultConfig() Config {
	return Config{
		RetryAttempts:     DefaultRetryAttempts,
		ConnectRetryDelay: DefaultConnectRetryDelay,
		ReadRetryDelay:    DefaultReadRetryDelay,
		RegisterPause:     DefaultRegisterPause,
	}
}

// Logger is the subset of logging.Logger the reader uses.
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Reader performs polling rounds over a Conn.
type Reader struct {
	conn   *Conn
	cfg    Config
	logger Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewReader creates a reader. Zero fields in cfg take their defaults.
func NewReader(conn *Conn, cfg Config) *Reader {
	def := DefaultConfig()
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.ConnectRetryDelay < 0 {
		cfg.ConnectRetryDelay = def.ConnectRetryDelay
	}
	if cfg.ReadRetryDelay < 0 {
		cfg.ReadRetryDelay = def.ReadRetryDelay
	}
	if cfg.RegisterPause < 0 {
		cfg.RegisterPause = def.RegisterPause
	}
	return &Reader{
		conn:   conn,
		cfg:    cfg,
		logger: nopLogger{},
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// SetLogger sets the logger used for per-attempt diagnostics.
func (r *Reader) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// Conn returns the connection the reader polls through.
func (r *Reader) Conn() *Conn {
	return r.conn
}

// Read performs one polling round for deviceID.
//
// Connect and analog read failures are retried up to RetryAttempts times.
// After the last failed attempt the link is closed and the returned error
// wraps ErrTransport. A cancelled ctx stops the retries and returns ctx.Err().
// Fault groups are read once each after a successful analog read.
func (r *Reader) Read(ctx context.Context, deviceID int, amap settings.AddressMap) (Sample, error) {
	if deviceID < decode.MinDeviceID || deviceID > decode.MaxDeviceID {
		return Sample{}, fmt.Errorf("%w: %d", ErrInvalidDevice, deviceID)
	}
	unit := uint8(deviceID) //nolint:gosec // G115: bounded above

	var lastErr error
	for attempt := 1; attempt <= r.cfg.RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}

		if err := r.conn.EnsureConnected(ctx); err != nil {
			lastErr = err
			r.logger.Debug("connect failed", "device_id", deviceID, "attempt", attempt, "error", err)
			if err := r.wait(ctx, attempt, r.cfg.ConnectRetryDelay); err != nil {
				return Sample{}, err
			}
			continue
		}

		words, err := r.conn.Read(unit, amap.PowerAddress, analogRegisters)
		if err != nil {
			lastErr = err
			r.logger.Debug("analog read failed", "device_id", deviceID, "attempt", attempt, "error", err)
			r.conn.Close() //nolint:errcheck // reconnect on next attempt
			if err := r.wait(ctx, attempt, r.cfg.ReadRetryDelay); err != nil {
				return Sample{}, err
			}
			continue
		}

		sample := Sample{
			DeviceID:    deviceID,
			Timestamp:   r.now(),
			Power:       decode.Scale(words[0], amap.PowerScale),
			Voltage:     decode.Scale(words[1], amap.VoltageScale),
			Current:     decode.Scale(words[2], amap.CurrentScale),
			Temperature: decode.Scale(words[3], amap.TemperatureScale),
			Attempts:    attempt,
		}
		faults, err := r.readFaults(ctx, unit, amap.FaultGroups)
		if err != nil {
			return Sample{}, err
		}
		sample.Faults = faults
		return sample, nil
	}

	r.conn.Close() //nolint:errcheck // leave the link clean for the next device
	return Sample{}, fmt.Errorf("%w: device %d after %d attempts: %v", ErrTransport, deviceID, r.cfg.RetryAttempts, lastErr)
}

// readFaults reads every fault group once. Only ctx cancellation is an error.
func (r *Reader) readFaults(ctx context.Context, unit uint8, groups []settings.FaultGroup) ([]FaultReading, error) {
	readings := make([]FaultReading, 0, len(groups))
	for _, g := range groups {
		if err := r.sleep(ctx, r.cfg.RegisterPause); err != nil {
			return nil, err
		}

		words, err := r.conn.Read(unit, g.Address, g.Quantity)
		if err != nil {
			readings = append(readings, FaultReading{
				Key:    g.Key,
				Status: Degraded,
				Err:    fmt.Errorf("%w: %s at %d: %v", ErrDegradedRead, g.Key, g.Address, err),
			})
			continue
		}

		readings = append(readings, FaultReading{
			Key:    g.Key,
			Status: Healthy,
			Value:  faultValue(words),
		})
	}
	return readings, nil
}

// faultValue packs one or two words into a fault bitmask.
func faultValue(words []uint16) uint32 {
	switch len(words) {
	case 0:
		return 0
	case 1:
		return uint32(words[0])
	default:
		return decode.PackFault(words[0], words[1])
	}
}

// wait sleeps between attempts. No wait follows the final attempt.
func (r *Reader) wait(ctx context.Context, attempt int, d time.Duration) error {
	if attempt >= r.cfg.RetryAttempts {
		return nil
	}
	return r.sleep(ctx, d)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
