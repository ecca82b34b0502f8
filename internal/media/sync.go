package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
)

// SyncResult aggregates the outcome of one media sync pass (§4.8).
type SyncResult struct {
	Renamed int
	Pushed  int
	Pulled  int
	Deleted int
}

// Sync runs the hashing, rewriting, push, and pull phases described in
// §4.8 against every Markdown file in collectionDir, reading and writing
// local media under mediaDir. Grounded on internal/merge/merge.go's
// batch-rewrite-then-report shape, adapted to the push/pull safety check
// this spec requires.
func Sync(ctx context.Context, collectionDir, mediaDir string, cl store.Client, tx *sidecar.Tx, dryRun bool) (*SyncResult, error) {
	storeMediaDir, err := cl.MediaDirPath(ctx)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "fetch store media dir", err)
	}
	if samePath(mediaDir, storeMediaDir) {
		return nil, ankierr.Wrap(ankierr.ErrValidation, "media sync",
			fmt.Errorf("local media directory %q resolves to the store's own media directory", mediaDir))
	}

	mdFiles, err := listMarkdownFiles(collectionDir)
	if err != nil {
		return nil, err
	}

	// mdState caches each file's extracted references against its
	// mtime+size, so a Markdown file that hasn't changed since the last
	// run skips its regex extraction pass entirely (§3, §4.8). Content is
	// only read into memory when the cache misses, or later, lazily, if a
	// rename touches one of the file's cached references.
	type mdState struct {
		refs    []string
		content string
		loaded  bool
	}
	entries := make(map[string]*mdState, len(mdFiles))
	referenced := map[string]bool{}

	for _, path := range mdFiles {
		info, err := os.Stat(path)
		if err != nil {
			return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("stat %s", path), err)
		}
		mtimeNS, size := info.ModTime().UnixNano(), info.Size()

		if cached, cacheErr := tx.GetMarkdownMediaState(path); cacheErr == nil && cached.MtimeNS == mtimeNS && cached.Size == size {
			entries[path] = &mdState{refs: cached.Refs}
			for _, ref := range cached.Refs {
				referenced[ref] = true
			}
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("read %s", path), err)
		}
		content := string(data)
		refs := ExtractReferences(content)
		entries[path] = &mdState{refs: refs, content: content, loaded: true}
		for _, ref := range refs {
			referenced[ref] = true
		}
		if !dryRun {
			if err := tx.UpsertMarkdownMediaState(sidecar.MarkdownMediaState{MDPath: path, MtimeNS: mtimeNS, Size: size, Refs: refs}); err != nil {
				return nil, err
			}
		}
	}

	localFiles, err := listMediaFiles(mediaDir)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	renames := map[string]string{}

	for _, name := range localFiles {
		if !referenced[name] && !strings.HasPrefix(name, "_") {
			continue // unreferenced, non-underscore files are handled in the push loop's deletion pass
		}
		path := filepath.Join(mediaDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, ankierr.Wrap(ankierr.ErrStorage, fmt.Sprintf("stat media file %s", path), err)
		}
		mtimeNS, size := info.ModTime().UnixNano(), info.Size()

		var digest string
		cached, cacheErr := tx.GetMediaFingerprint(name)
		if cacheErr == nil && cached.MtimeNS == mtimeNS && cached.Size == size {
			digest = cached.Digest
		} else {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("read media file %s", path), err)
			}
			digest = ContentDigest(data)
			if !dryRun {
				fp := sidecar.MediaFingerprint{LogicalName: name, MtimeNS: mtimeNS, Size: size, Digest: digest, HashedName: HashedName(name, digest)}
				if err := tx.UpsertMediaFingerprint(fp); err != nil {
					return nil, err
				}
			}
		}

		if IsHashed(name, digest) {
			continue
		}
		newName := HashedName(name, digest)
		newPath := filepath.Join(mediaDir, newName)
		if !dryRun {
			if err := os.Rename(path, newPath); err != nil {
				return nil, ankierr.Wrap(ankierr.ErrStorage, fmt.Sprintf("rename media file %s", path), err)
			}
		}
		renames[name] = newName
		result.Renamed++
	}

	if len(renames) > 0 {
		for _, path := range mdFiles {
			e := entries[path]
			touched := false
			for _, ref := range e.refs {
				if _, ok := renames[ref]; ok {
					touched = true
					break
				}
			}
			if !touched {
				continue
			}
			if !e.loaded {
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("read %s", path), err)
				}
				e.content = string(data)
				e.loaded = true
			}
			rewritten := RewriteReferences(e.content, renames)
			if rewritten == e.content {
				continue
			}
			if !dryRun {
				if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
					return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("rewrite media references in %s", path), err)
				}
			}
			e.content = rewritten
			e.refs = ExtractReferences(rewritten)
			if !dryRun {
				if info, statErr := os.Stat(path); statErr == nil {
					st := sidecar.MarkdownMediaState{MDPath: path, MtimeNS: info.ModTime().UnixNano(), Size: info.Size(), Refs: e.refs}
					if err := tx.UpsertMarkdownMediaState(st); err != nil {
						return nil, err
					}
				}
			}
		}
		referenced = map[string]bool{}
		for _, e := range entries {
			for _, ref := range e.refs {
				referenced[ref] = true
			}
		}
	}

	localFiles, err = listMediaFiles(mediaDir)
	if err != nil {
		return nil, err
	}
	localSet := map[string]bool{}
	for _, name := range localFiles {
		localSet[name] = true
	}

	for _, name := range localFiles {
		if !referenced[name] && !strings.HasPrefix(name, "_") {
			if !dryRun {
				if err := os.Remove(filepath.Join(mediaDir, name)); err != nil {
					return nil, ankierr.Wrap(ankierr.ErrStorage, fmt.Sprintf("remove unreferenced media file %s", name), err)
				}
			}
			result.Deleted++
			continue
		}

		path := filepath.Join(mediaDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("read media file %s", path), err)
		}
		digest := ContentDigest(data)
		lastPushed, pushErr := tx.GetMediaPushDigest(name)
		if pushErr == nil && lastPushed == digest {
			continue
		}
		if !dryRun {
			if err := cl.PushMedia(ctx, name, data); err != nil {
				return nil, ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("push media file %s", name), err)
			}
			if err := tx.SetMediaPushDigest(name, digest); err != nil {
				return nil, err
			}
		}
		result.Pushed++
	}

	var missing []string
	for name := range referenced {
		if !localSet[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		if dryRun {
			result.Pulled++
			continue
		}
		data, err := cl.PullMedia(ctx, name)
		if err != nil {
			return nil, ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("pull media file %s", name), err)
		}
		if err := os.WriteFile(filepath.Join(mediaDir, name), data, 0o644); err != nil {
			return nil, ankierr.Wrap(ankierr.ErrStorage, fmt.Sprintf("write pulled media file %s", name), err)
		}
		result.Pulled++
	}

	return result, nil
}

func listMarkdownFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrParse, "list markdown files", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func listMediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ankierr.Wrap(ankierr.ErrStorage, "list media files", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
