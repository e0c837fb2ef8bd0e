// SPDX-License-Identifier: MPL-2.0

package planner

import (
	"net/url"
	"slices"
	"strings"

	"github.com/sofastack/sofa-ark-sub003/pkg/arkmod"
)

const (
	clauseSeparator = ";"
	fieldSeparator  = ":"
	paramSeparator  = "?"

	wireActivated   = "ACTIVATED"
	wireDeactivated = "DEACTIVATED"
)

// ParseDesired parses a desired-state config. Blank clauses are ignored; the
// first malformed clause fails the whole config with *arkmod.InvalidConfigError.
func ParseDesired(config string) ([]arkmod.DesiredAssignment, error) {
	var out []arkmod.DesiredAssignment
	for raw := range strings.SplitSeq(config, clauseSeparator) {
		clause := strings.TrimSpace(raw)
		if clause == "" {
			continue
		}
		a, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func parseClause(clause string) (arkmod.DesiredAssignment, error) {
	head, query, hasQuery := strings.Cut(clause, paramSeparator)

	fields := strings.Split(head, fieldSeparator)
	if len(fields) != 3 {
		return arkmod.DesiredAssignment{}, invalid(clause, "expected name:version:STATE")
	}

	key := arkmod.NewKey(strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]))
	if err := key.Validate(); err != nil {
		return arkmod.DesiredAssignment{}, invalid(clause, err.Error())
	}

	desired, ok := parseWireState(fields[2])
	if !ok {
		return arkmod.DesiredAssignment{}, invalid(clause, "state must be ACTIVATED or DEACTIVATED")
	}

	a := arkmod.DesiredAssignment{Key: key, Desired: desired, Clause: clause}
	if hasQuery {
		params, err := parseParams(query)
		if err != nil {
			return arkmod.DesiredAssignment{}, invalid(clause, err.Error())
		}
		a.Params = params
	}
	return a, nil
}

func parseWireState(raw string) (arkmod.DesiredState, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case wireActivated:
		return arkmod.DesiredActive, true
	case wireDeactivated:
		return arkmod.DesiredInactive, true
	default:
		return "", false
	}
}

// parseParams decodes the query block. Repeated keys keep their first value.
func parseParams(query string) (map[string]string, error) {
	values, err := url.ParseQuery(strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params, nil
}

// FormatDesired renders a desired map back into the wire format, in name
// then version order. Params are not part of the map and are not rendered.
func FormatDesired(desired map[arkmod.Key]arkmod.DesiredState) string {
	keys := make([]arkmod.Key, 0, len(desired))
	for k := range desired {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, arkmod.CompareKeys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		state := wireDeactivated
		if desired[k] == arkmod.DesiredActive {
			state = wireActivated
		}
		clauses = append(clauses, k.Name+fieldSeparator+k.Version+fieldSeparator+state)
	}
	return strings.Join(clauses, clauseSeparator)
}

func invalid(clause, reason string) error {
	return &arkmod.InvalidConfigError{Clause: clause, Reason: reason}
}
