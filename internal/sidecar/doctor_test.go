package sidecar

import (
	"path/filepath"
	"testing"
)

func TestDoctorReportsHealthyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db.Close()

	result, err := Doctor(path)
	if err != nil {
		t.Fatalf("Doctor() error = %v", err)
	}
	if !result.OverallOK {
		t.Fatalf("expected a freshly created database to be healthy: %+v", result.Checks)
	}
	for _, check := range result.Checks {
		if !check.OK {
			t.Errorf("unexpected failing check: %+v", check)
		}
	}
}
