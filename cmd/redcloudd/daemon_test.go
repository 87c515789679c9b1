package main

import "testing"

// TestUnitProcessRoles tests that processRoles correctly normalizes and
// validates the --roles flag.
func TestUnitProcessRoles(t *testing.T) {
	testVals := []struct {
		in  string
		out string
	}{
		{"ms", "ms"},
		{"MS", "ms"},
		{"m", "m"},
		{"s", "s"},
		{"M", "m"},
		{"S", "s"},
	}
	for _, testVal := range testVals {
		out, err := processRoles(testVal.in)
		if err != nil {
			t.Error("processRoles failed with error:", err)
		}
		if out != testVal.out {
			t.Errorf("processRoles returned incorrect roles: expected %s, got %s\n", testVal.out, out)
		}
	}

	invalidRoles := []string{"", "x", "msx", "mm", "ss", "mms"}
	for _, invalid := range invalidRoles {
		if _, err := processRoles(invalid); err == nil {
			t.Error("processRoles didn't error on invalid roles:", invalid)
		}
	}
}

// TestUnitProcessConfig probes the 'processConfig' function.
func TestUnitProcessConfig(t *testing.T) {
	var config Config
	config.redcloudd.Roles = "MS"
	config, err := processConfig(config)
	if err != nil {
		t.Error("processConfig failed with error:", err)
	}
	if config.redcloudd.Roles != "ms" {
		t.Error("processConfig did not normalize roles:", config.redcloudd.Roles)
	}

	config.redcloudd.Roles = "z"
	if _, err := processConfig(config); err == nil {
		t.Error("processConfig didn't error on invalid roles")
	}
}

// TestUnitNodeParams checks that nodeParams wires the daemon config into
// the expected NodeParams shape.
func TestUnitNodeParams(t *testing.T) {
	var config Config
	config.redcloudd.Roles = "ms"
	config.redcloudd.MetadataAddr = ":9981"
	config.redcloudd.StorageAddr = ":9982"
	config.redcloudd.StorageCapacityGiB = 10
	config.redcloudd.redclouddir = "/tmp/redcloud-test"

	params := nodeParams(config)
	if !params.CreateMetadataNode || !params.CreateStorageNode {
		t.Error("expected both roles to be enabled")
	}
	if params.MetadataListenAddr != ":9981" || params.StorageListenAddr != ":9982" {
		t.Error("listen addresses not wired through")
	}
	if params.StorageConfig.StorageCapacity != 10<<30 {
		t.Error("storage capacity not converted from GiB")
	}

	config.redcloudd.Roles = "m"
	params = nodeParams(config)
	if !params.CreateMetadataNode || params.CreateStorageNode {
		t.Error("expected only the metadata role to be enabled")
	}
}
