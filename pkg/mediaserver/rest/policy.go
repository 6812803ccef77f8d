package rest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// policyCodec translates between langmirror's visible-library sets and the
// host server's user policy JSON.
//
// The policy schema renamed its folder-permission fields across host major
// versions; each supported schema gets one codec, selected once at client
// construction. The codec works on the raw policy object and only touches
// its own fields, so unrelated policy settings round-trip untouched.
type policyCodec interface {
	// name identifies the codec in logs
	name() string

	// decode extracts the visible-library ids and the all-access flag
	// from a policy object.
	decode(policy json.RawMessage) (ids []string, allAccess bool, err error)

	// encode installs the visible-library set into a copy of the policy
	// object, clearing the all-access flag.
	encode(policy json.RawMessage, ids []string) (map[string]any, error)
}

// codecForVersion picks the policy codec for a server version string.
// Servers from 10.9 on use the renamed library-permission fields.
func codecForVersion(version string) policyCodec {
	major, minor := parseVersion(version)
	if major > 10 || (major == 10 && minor >= 9) {
		return libraryFieldCodec{}
	}
	return folderFieldCodec{}
}

// parseVersion extracts major/minor from a dotted version string.
// Unparseable input yields zeros, which selects the legacy codec.
func parseVersion(version string) (major, minor int) {
	parts := strings.Split(version, ".")
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}

// folderFieldCodec handles the legacy schema (EnableAllFolders /
// EnabledFolders).
type folderFieldCodec struct{}

func (folderFieldCodec) name() string { return "folders-v1" }

func (folderFieldCodec) decode(policy json.RawMessage) ([]string, bool, error) {
	return decodePolicyFields(policy, "EnableAllFolders", "EnabledFolders")
}

func (folderFieldCodec) encode(policy json.RawMessage, ids []string) (map[string]any, error) {
	return encodePolicyFields(policy, "EnableAllFolders", "EnabledFolders", ids)
}

// libraryFieldCodec handles the renamed schema (EnableAllLibraries /
// EnabledLibraries).
type libraryFieldCodec struct{}

func (libraryFieldCodec) name() string { return "libraries-v2" }

func (libraryFieldCodec) decode(policy json.RawMessage) ([]string, bool, error) {
	return decodePolicyFields(policy, "EnableAllLibraries", "EnabledLibraries")
}

func (libraryFieldCodec) encode(policy json.RawMessage, ids []string) (map[string]any, error) {
	return encodePolicyFields(policy, "EnableAllLibraries", "EnabledLibraries", ids)
}

func decodePolicyFields(policy json.RawMessage, allField, listField string) ([]string, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(policy, &fields); err != nil {
		return nil, false, fmt.Errorf("malformed policy object: %w", err)
	}

	var allAccess bool
	if raw, ok := fields[allField]; ok {
		if err := json.Unmarshal(raw, &allAccess); err != nil {
			return nil, false, fmt.Errorf("malformed %s: %w", allField, err)
		}
	}

	var ids []string
	if raw, ok := fields[listField]; ok {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, false, fmt.Errorf("malformed %s: %w", listField, err)
		}
	}

	return ids, allAccess, nil
}

func encodePolicyFields(policy json.RawMessage, allField, listField string, ids []string) (map[string]any, error) {
	var fields map[string]any
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &fields); err != nil {
			return nil, fmt.Errorf("malformed policy object: %w", err)
		}
	}
	if fields == nil {
		fields = make(map[string]any)
	}

	fields[allField] = false
	fields[listField] = ids
	return fields, nil
}
