package decode

import "fmt"

// maskBits is the number of bits inspected in a fault bitmask.
const maskBits = 32

// FaultTable maps a bit index to the description of the fault it signals.
type FaultTable map[int]string

// FaultTable189 describes the bits of the fault register group at address 189.
var FaultTable189 = buildOvercurrentTable()

// FaultTable193 describes the bits of the fault register group at address 193.
var FaultTable193 = buildOvervoltageTable()

// dcStrings is the number of DC inputs covered by register 189 (two bits each).
const dcStrings = 12

// pvInputs is the number of PV inputs covered by register 193.
const pvInputs = 12

func buildOvercurrentTable() FaultTable {
	t := make(FaultTable, dcStrings*2)
	for n := 1; n <= dcStrings; n++ {
		base := (n - 1) * 2
		t[base] = fmt.Sprintf("DC overcurrent fault [%d-1]", n)
		t[base+1] = fmt.Sprintf("DC overcurrent fault [%d-2]", n)
	}
	return t
}

func buildOvervoltageTable() FaultTable {
	t := make(FaultTable, pvInputs)
	for n := 1; n <= pvInputs; n++ {
		t[n-1] = fmt.Sprintf("PV overvoltage [%d]", n)
	}
	return t
}

// ActiveFaults lists the description of every set bit in mask, lowest bit first.
// Bits missing from table are reported as "unknown fault (bit N)".
// A zero mask returns an empty (non-nil) slice.
func ActiveFaults(mask uint32, table FaultTable) []string {
	active := []string{}
	for bit := 0; bit < maskBits; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		if desc, ok := table[bit]; ok {
			active = append(active, desc)
			continue
		}
		active = append(active, fmt.Sprintf("unknown fault (bit %d)", bit))
	}
	return active
}
