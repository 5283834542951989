package settings

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/decode"
)

func TestParseSnapshot_Defaults(t *testing.T) {
	snap, errs := ParseSnapshot(Defaults())
	if len(errs) != 0 {
		t.Fatalf("ParseSnapshot() errs = %v", errs)
	}

	want := Snapshot{
		Endpoint:  Endpoint{Host: "10.35.14.10", Port: 502},
		Refresh:   2 * time.Second,
		DeviceIDs: []int{1, 2, 3},
		AddressMap: AddressMap{
			PowerAddress:       70,
			VoltageAddress:     71,
			CurrentAddress:     72,
			TemperatureAddress: 73,
			PowerScale:         1.0,
			VoltageScale:       0.1,
			CurrentScale:       0.1,
			TemperatureScale:   1.0,
			FaultGroups: []FaultGroup{
				{Key: FaultA, Address: 189, Quantity: 2},
				{Key: FaultB, Address: 193, Quantity: 2},
			},
		},
		RetentionDays: 365,
	}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("ParseSnapshot() = %+v, want %+v", snap, want)
	}
}

func TestParseSnapshot_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		check   func(Snapshot) bool
		wantErr error
	}{
		{"port not a number", KeyTargetPort, "abc", func(s Snapshot) bool { return s.Endpoint.Port == 502 }, ErrInvalidValue},
		{"port out of range", KeyTargetPort, "70000", func(s Snapshot) bool { return s.Endpoint.Port == 502 }, ErrInvalidValue},
		{"zero refresh", KeyRefreshRate, "0", func(s Snapshot) bool { return s.Refresh == 2*time.Second }, ErrInvalidValue},
		{"refresh overflows duration", KeyRefreshRate, "1e12", func(s Snapshot) bool { return s.Refresh == 2*time.Second }, ErrInvalidValue},
		{"refresh below minimum", KeyRefreshRate, "1e-12", func(s Snapshot) bool { return s.Refresh == 2*time.Second }, ErrInvalidValue},
		{"refresh above one day", KeyRefreshRate, "86401", func(s Snapshot) bool { return s.Refresh == 2*time.Second }, ErrInvalidValue},
		{"refresh infinite", KeyRefreshRate, "+Inf", func(s Snapshot) bool { return s.Refresh == 2*time.Second }, ErrInvalidValue},
		{"refresh at maximum", KeyRefreshRate, "86400", func(s Snapshot) bool { return s.Refresh == 24*time.Hour }, nil},
		{"refresh at minimum", KeyRefreshRate, "0.1", func(s Snapshot) bool { return s.Refresh == 100*time.Millisecond }, nil},
		{"negative retention", KeyRetentionDays, "-1", func(s Snapshot) bool { return s.RetentionDays == 365 }, ErrInvalidValue},
		{"bad scale", KeyVoltageScale, "x", func(s Snapshot) bool { return s.AddressMap.VoltageScale == 0.1 }, ErrInvalidValue},
		{"address too large", KeyPowerAddr, "65536", func(s Snapshot) bool { return s.AddressMap.PowerAddress == 70 }, ErrInvalidValue},
		{"empty host", KeyTargetIP, " ", func(s Snapshot) bool { return s.Endpoint.Host == "10.35.14.10" }, ErrInvalidValue},
		{"bad id token", KeySlaveIDs, "1,x", func(s Snapshot) bool { return reflect.DeepEqual(s.DeviceIDs, []int{1}) }, decode.ErrInvalidIDList},
		{"zero retention is valid", KeyRetentionDays, "0", func(s Snapshot) bool { return s.RetentionDays == 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			s[tt.key] = Setting{Key: tt.key, Value: tt.value}

			snap, errs := ParseSnapshot(s)
			if !tt.check(snap) {
				t.Errorf("ParseSnapshot() = %+v, unexpected fallback", snap)
			}
			if tt.wantErr == nil {
				if len(errs) != 0 {
					t.Errorf("ParseSnapshot() errs = %v, want none", errs)
				}
				return
			}
			if len(errs) != 1 || !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("ParseSnapshot() errs = %v, want one %v", errs, tt.wantErr)
			}
		})
	}
}

func TestParseSnapshot_MissingKeysUseDefaults(t *testing.T) {
	snap, errs := ParseSnapshot(Settings{})
	if len(errs) != 0 {
		t.Fatalf("ParseSnapshot() errs = %v", errs)
	}
	if !reflect.DeepEqual(snap, DefaultSnapshot()) {
		t.Errorf("ParseSnapshot(empty) = %+v, want defaults", snap)
	}
}

func TestSnapshot_Devices(t *testing.T) {
	snap := DefaultSnapshot()
	ids := snap.Devices()
	ids[0] = 99

	if snap.DeviceIDs[0] != 1 {
		t.Errorf("Devices() shares backing array with snapshot")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{KeyRefreshRate, "5", false},
		{KeyRefreshRate, "-5", true},
		{KeyRefreshRate, "1e12", true},
		{KeySlaveIDs, "1-3,7", false},
		{KeySlaveIDs, "1,300", true},
		{KeyTargetPort, "502", false},
		{KeyTargetPort, "0", true},
		{"operator_note", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := Validate(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}
}
