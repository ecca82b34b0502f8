package sidecar

import (
	"encoding/json"
	"fmt"
)

// MediaFingerprint caches the content digest and hashed-name assigned to a
// logical media file, keyed by mtime+size so unchanged files are skipped
// on subsequent runs (§4.8).
type MediaFingerprint struct {
	LogicalName string
	MtimeNS     int64
	Size        int64
	Digest      string
	HashedName  string
}

func (tx *Tx) GetMediaFingerprint(logicalName string) (MediaFingerprint, error) {
	fp := MediaFingerprint{LogicalName: logicalName}
	err := tx.raw.QueryRow(
		`SELECT mtime_ns, size, digest, hashed_name FROM media_fingerprints WHERE logical_name = ?`,
		logicalName).Scan(&fp.MtimeNS, &fp.Size, &fp.Digest, &fp.HashedName)
	if err != nil {
		return MediaFingerprint{}, wrapDBError(fmt.Sprintf("get media fingerprint for %s", logicalName), err)
	}
	return fp, nil
}

func (tx *Tx) UpsertMediaFingerprint(fp MediaFingerprint) error {
	_, err := tx.raw.Exec(
		`INSERT INTO media_fingerprints (logical_name, mtime_ns, size, digest, hashed_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(logical_name) DO UPDATE SET
		   mtime_ns = excluded.mtime_ns, size = excluded.size,
		   digest = excluded.digest, hashed_name = excluded.hashed_name`,
		fp.LogicalName, fp.MtimeNS, fp.Size, fp.Digest, fp.HashedName)
	return wrapDBError("upsert media fingerprint", err)
}

// MarkdownMediaState caches which media references a Markdown file held as
// of its last-seen mtime+size, so unchanged files skip re-extraction.
type MarkdownMediaState struct {
	MDPath  string
	MtimeNS int64
	Size    int64
	Refs    []string
}

func (tx *Tx) GetMarkdownMediaState(mdPath string) (MarkdownMediaState, error) {
	st := MarkdownMediaState{MDPath: mdPath}
	var refsJSON string
	err := tx.raw.QueryRow(
		`SELECT mtime_ns, size, refs FROM markdown_media_state WHERE md_path = ?`,
		mdPath).Scan(&st.MtimeNS, &st.Size, &refsJSON)
	if err != nil {
		return MarkdownMediaState{}, wrapDBError(fmt.Sprintf("get markdown media state for %s", mdPath), err)
	}
	if err := json.Unmarshal([]byte(refsJSON), &st.Refs); err != nil {
		return MarkdownMediaState{}, wrapDBError("decode markdown media refs", err)
	}
	return st, nil
}

func (tx *Tx) UpsertMarkdownMediaState(st MarkdownMediaState) error {
	refsJSON, err := json.Marshal(st.Refs)
	if err != nil {
		return wrapDBError("encode markdown media refs", err)
	}
	_, err = tx.raw.Exec(
		`INSERT INTO markdown_media_state (md_path, mtime_ns, size, refs) VALUES (?, ?, ?, ?)
		 ON CONFLICT(md_path) DO UPDATE SET mtime_ns = excluded.mtime_ns, size = excluded.size, refs = excluded.refs`,
		st.MDPath, st.MtimeNS, st.Size, string(refsJSON))
	return wrapDBError("upsert markdown media state", err)
}

// GetMediaPushDigest returns the digest last pushed to the store under
// name, or ErrNotFound if it has never been pushed.
func (tx *Tx) GetMediaPushDigest(name string) (string, error) {
	var digest string
	err := tx.raw.QueryRow(`SELECT last_pushed_digest FROM media_push_state WHERE name = ?`, name).Scan(&digest)
	if err != nil {
		return "", wrapDBError(fmt.Sprintf("get media push state for %s", name), err)
	}
	return digest, nil
}

func (tx *Tx) SetMediaPushDigest(name, digest string) error {
	_, err := tx.raw.Exec(
		`INSERT INTO media_push_state (name, last_pushed_digest) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET last_pushed_digest = excluded.last_pushed_digest`,
		name, digest)
	return wrapDBError("set media push state", err)
}
