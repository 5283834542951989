package decode

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestParseIDList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantIDs  []int
		wantErrs []string
	}{
		{
			name:    "singles and range",
			input:   "1,3-5,7",
			wantIDs: []int{1, 3, 4, 5, 7},
		},
		{
			name:     "range with bad tokens",
			input:    "1-5,abc,300",
			wantIDs:  []int{1, 2, 3, 4, 5},
			wantErrs: []string{"invalid token 'abc'", "out of range '300'"},
		},
		{
			name:     "empty input",
			input:    "",
			wantIDs:  []int{},
			wantErrs: []string{"empty id list"},
		},
		{
			name:     "blank input",
			input:    "   ",
			wantIDs:  []int{},
			wantErrs: []string{"empty id list"},
		},
		{
			name:    "duplicates and unsorted",
			input:   "5, 3,5 ,1-3",
			wantIDs: []int{1, 2, 3, 5},
		},
		{
			name:    "empty tokens skipped",
			input:   "1,,2,",
			wantIDs: []int{1, 2},
		},
		{
			name:     "reversed range",
			input:    "5-3,9",
			wantIDs:  []int{9},
			wantErrs: []string{"invalid range '5-3'"},
		},
		{
			name:     "range out of bounds",
			input:    "0-3,250-256",
			wantIDs:  []int{},
			wantErrs: []string{"out of range '0-3'", "out of range '250-256'"},
		},
		{
			name:     "too many dashes",
			input:    "1-2-3",
			wantIDs:  []int{},
			wantErrs: []string{"invalid range '1-2-3'"},
		},
		{
			name:     "malformed range side",
			input:    "a-3,-4",
			wantIDs:  []int{},
			wantErrs: []string{"invalid token 'a-3'", "invalid token '-4'"},
		},
		{
			name:     "zero and overflow",
			input:    "0,99999999999999999999999",
			wantIDs:  []int{},
			wantErrs: []string{"out of range '0'", "out of range '99999999999999999999999'"},
		},
		{
			name:    "full range",
			input:   "254-255",
			wantIDs: []int{254, 255},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, errs := ParseIDList(tt.input)

			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ParseIDList(%q) ids = %v, want %v", tt.input, ids, tt.wantIDs)
			}

			got := make([]string, 0, len(errs))
			for _, err := range errs {
				got = append(got, err.Error())
				if !errors.Is(err, ErrInvalidIDList) {
					t.Errorf("error %v does not wrap ErrInvalidIDList", err)
				}
			}
			want := tt.wantErrs
			if want == nil {
				want = []string{}
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ParseIDList(%q) errors = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseIDList_ErrorType(t *testing.T) {
	_, errs := ParseIDList("x")
	if len(errs) != 1 {
		t.Fatalf("ParseIDList() errors = %d, want 1", len(errs))
	}

	var idErr *IDListError
	if !errors.As(errs[0], &idErr) {
		t.Fatalf("error %T is not *IDListError", errs[0])
	}
	if idErr.Token != "x" || idErr.Reason != ReasonInvalidToken {
		t.Errorf("IDListError = %+v, want token x / %s", idErr, ReasonInvalidToken)
	}
}

func TestPackFault(t *testing.T) {
	tests := []struct {
		hi, lo uint16
		want   uint32
	}{
		{0x0001, 0x0002, 0x00010002},
		{0x0000, 0x0000, 0},
		{0xFFFF, 0xFFFF, 0xFFFFFFFF},
		{0x8000, 0x0001, 0x80000001},
	}

	for _, tt := range tests {
		if got := PackFault(tt.hi, tt.lo); got != tt.want {
			t.Errorf("PackFault(%#04x, %#04x) = %#08x, want %#08x", tt.hi, tt.lo, got, tt.want)
		}
		hi, lo := UnpackFault(tt.want)
		if hi != tt.hi || lo != tt.lo {
			t.Errorf("UnpackFault(%#08x) = (%#04x, %#04x), want (%#04x, %#04x)", tt.want, hi, lo, tt.hi, tt.lo)
		}
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		raw    uint16
		factor float64
		want   float64
	}{
		{2300, 0.1, 230},
		{1500, 1.0, 1500},
		{0, 0.1, 0},
		{65535, 1.0, 65535},
	}

	for _, tt := range tests {
		got := Scale(tt.raw, tt.factor)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Scale(%d, %v) = %v, want %v", tt.raw, tt.factor, got, tt.want)
		}
	}
}

func TestActiveFaults(t *testing.T) {
	t.Run("zero mask", func(t *testing.T) {
		got := ActiveFaults(0, FaultTable189)
		if got == nil || len(got) != 0 {
			t.Errorf("ActiveFaults(0) = %v, want empty slice", got)
		}
	})

	t.Run("known bits", func(t *testing.T) {
		got := ActiveFaults(0b101, FaultTable189)
		want := []string{"DC overcurrent fault [1-1]", "DC overcurrent fault [2-1]"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ActiveFaults() = %v, want %v", got, want)
		}
	})

	t.Run("unknown bit", func(t *testing.T) {
		got := ActiveFaults(1<<31|1<<11, FaultTable193)
		want := []string{"PV overvoltage [12]", "unknown fault (bit 31)"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ActiveFaults() = %v, want %v", got, want)
		}
	})
}

func TestFaultTables(t *testing.T) {
	if len(FaultTable189) != 24 {
		t.Errorf("len(FaultTable189) = %d, want 24", len(FaultTable189))
	}
	if FaultTable189[23] != "DC overcurrent fault [12-2]" {
		t.Errorf("FaultTable189[23] = %q", FaultTable189[23])
	}
	if len(FaultTable193) != 12 {
		t.Errorf("len(FaultTable193) = %d, want 12", len(FaultTable193))
	}
}

func TestFormatIDList(t *testing.T) {
	tests := []struct {
		ids  []int
		want string
	}{
		{nil, "[]"},
		{[]int{1, 2, 3}, "[1, 2, 3]"},
		{[]int{1, 2, 3, 4, 5}, "[1, 2, 3, 4, 5]"},
		{[]int{1, 2, 3, 4, 5, 6}, "[1, 2, 3, ... 6 ids]"},
	}

	for _, tt := range tests {
		if got := FormatIDList(tt.ids); got != tt.want {
			t.Errorf("FormatIDList(%v) = %q, want %q", tt.ids, got, tt.want)
		}
	}
}
