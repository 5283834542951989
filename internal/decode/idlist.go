package decode

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Device id bounds for the register protocol (unit identifiers).
const (
	MinDeviceID = 1
	MaxDeviceID = 255
)

// maxDisplayedIDs is how many ids FormatIDList prints before abbreviating.
const maxDisplayedIDs = 5

// abbreviatedIDs is how many leading ids are kept in an abbreviated list.
const abbreviatedIDs = 3

// ParseIDList parses a comma-separated list of device ids.
//
// Each token is either a bare integer ("7") or an inclusive range ("3-5").
// Whitespace around tokens is ignored and empty tokens are skipped.
// The returned ids are deduplicated and sorted ascending.
//
// Rejected tokens are returned as *IDListError values; parsing continues
// with the next token. An empty or blank input yields no ids and a single
// "empty id list" error.
//
// Example:
//
//	ids, errs := decode.ParseIDList("1-5,abc,300")
//	// ids  = [1 2 3 4 5]
//	// errs = [invalid token 'abc', out of range '300']
func ParseIDList(text string) ([]int, []error) {
	if strings.TrimSpace(text) == "" {
		return []int{}, []error{&IDListError{Reason: ReasonEmptyList}}
	}

	seen := make(map[int]struct{})
	var errs []error

	for _, raw := range strings.Split(text, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		var err error
		if strings.Contains(token, "-") {
			err = addRange(seen, token)
		} else {
			err = addSingle(seen, token)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids, errs
}

// addSingle parses a bare integer token.
func addSingle(seen map[int]struct{}, token string) error {
	id, err := parseID(token)
	if err != nil {
		return &IDListError{Token: token, Reason: reasonFor(err)}
	}
	if !validID(id) {
		return &IDListError{Token: token, Reason: ReasonOutOfRange}
	}
	seen[id] = struct{}{}
	return nil
}

// addRange parses an inclusive "start-end" token.
func addRange(seen map[int]struct{}, token string) error {
	bounds := strings.Split(token, "-")
	if len(bounds) != 2 { //nolint:mnd // a range has exactly two bounds
		return &IDListError{Token: token, Reason: ReasonInvalidRange}
	}

	start, err := parseID(bounds[0])
	if err != nil {
		return &IDListError{Token: token, Reason: reasonFor(err)}
	}
	end, err := parseID(bounds[1])
	if err != nil {
		return &IDListError{Token: token, Reason: reasonFor(err)}
	}

	if start > end {
		return &IDListError{Token: token, Reason: ReasonInvalidRange}
	}
	if !validID(start) || !validID(end) {
		return &IDListError{Token: token, Reason: ReasonOutOfRange}
	}

	for id := start; id <= end; id++ {
		seen[id] = struct{}{}
	}
	return nil
}

// errIDOverflow marks a numeric token too large to represent.
var errIDOverflow = errors.New("id overflow")

// parseID converts one numeric token, distinguishing overflow from syntax errors.
func parseID(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, errIDOverflow
		}
		return 0, err
	}
	return n, nil
}

// reasonFor maps a parseID failure to the diagnostic reason.
func reasonFor(err error) string {
	if errors.Is(err, errIDOverflow) {
		return ReasonOutOfRange
	}
	return ReasonInvalidToken
}

func validID(id int) bool {
	return id >= MinDeviceID && id <= MaxDeviceID
}

// FormatIDList renders ids for log lines and status payloads.
// Short lists are printed in full; longer ones show the first few and a total.
func FormatIDList(ids []int) string {
	if len(ids) == 0 {
		return "[]"
	}

	show := ids
	if len(ids) > maxDisplayedIDs {
		show = ids[:abbreviatedIDs]
	}

	parts := make([]string, len(show))
	for i, id := range show {
		parts[i] = strconv.Itoa(id)
	}

	if len(ids) > maxDisplayedIDs {
		return fmt.Sprintf("[%s, ... %d ids]", strings.Join(parts, ", "), len(ids))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
