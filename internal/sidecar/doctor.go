package sidecar

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ankiops/ankiops/internal/ankierr"
)

// DoctorCheck is one diagnostic finding against the sidecar database file.
type DoctorCheck struct {
	Name    string
	OK      bool
	Message string
}

// DoctorResult aggregates every check run against one sidecar file.
type DoctorResult struct {
	Path      string
	Checks    []DoctorCheck
	OverallOK bool
}

// Doctor opens path through the alternate ncruces/go-sqlite3 driver,
// independent of the pure-Go modernc.org/sqlite connection Open uses, and
// runs a PRAGMA integrity_check plus the row-count sanity checks the
// corruption-rename path in Open can't see from inside a single
// connection. Grounded on the teacher's cmd/bd/doctor.go diagnostic-check
// shape, generalized from issue-tracker-specific checks to this sidecar
// schema's tables.
func Doctor(path string) (*DoctorResult, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStorage, "open sidecar database for diagnostics", err)
	}
	defer conn.Close()

	result := &DoctorResult{Path: path, OverallOK: true}

	integrityCheck, err := runIntegrityCheck(conn)
	result.Checks = append(result.Checks, integrityCheck)
	if err != nil || !integrityCheck.OK {
		result.OverallOK = false
	}

	for _, table := range []string{"notes", "decks", "note_fingerprints", "media_push_state"} {
		check := checkTableReadable(conn, table)
		result.Checks = append(result.Checks, check)
		if !check.OK {
			result.OverallOK = false
		}
	}

	return result, nil
}

func runIntegrityCheck(conn *sql.DB) (DoctorCheck, error) {
	var status string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&status); err != nil {
		return DoctorCheck{Name: "integrity_check", OK: false, Message: err.Error()}, err
	}
	if status != "ok" {
		return DoctorCheck{Name: "integrity_check", OK: false, Message: status}, nil
	}
	return DoctorCheck{Name: "integrity_check", OK: true, Message: "ok"}, nil
}

func checkTableReadable(conn *sql.DB, table string) DoctorCheck {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := conn.QueryRow(query).Scan(&count); err != nil {
		return DoctorCheck{Name: table, OK: false, Message: err.Error()}
	}
	return DoctorCheck{Name: table, OK: true, Message: fmt.Sprintf("%d rows", count)}
}
