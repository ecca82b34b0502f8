package sidecar

import "fmt"

// GetConfigValue reads a single key from the sidecar's small config table,
// used for run-to-run state that doesn't belong in config.yaml (e.g. the
// last audit sequence number).
func (tx *Tx) GetConfigValue(key string) (string, error) {
	var value string
	err := tx.raw.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", wrapDBError(fmt.Sprintf("get config value for %s", key), err)
	}
	return value, nil
}

func (tx *Tx) SetConfigValue(key, value string) error {
	_, err := tx.raw.Exec(
		`INSERT INTO config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return wrapDBError("set config value", err)
}
