package records

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"

	"github.com/hatcher/pilot/pkg/logs"
)

// LocalBackend reads and writes one JSON record per entity under a root
// directory:
//
//	project/{projectID}.json
//	session/{projectID}/{sessionID}.json
//	message/{sessionID}/{messageID}.json
//	part/{messageID}/{partID}.json
//	todo/{sessionID}.json
type LocalBackend struct {
	Root string
}

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{Root: root}
}

func (b *LocalBackend) readJSON(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrapf(err, "decode %s", path)
	}
	return true, nil
}

func (b *LocalBackend) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// readDirRecords decodes every *.json record in dir into out via decode,
// skipping (and logging) individually corrupt files. A missing directory is
// a normal empty result.
func readDirRecords(dir string, decode func(data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "list %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logs.Warnf("records: skipping unreadable record %s: %v", path, err)
			continue
		}
		if err := decode(data); err != nil {
			logs.Warnf("records: skipping corrupt record %s: %v", path, err)
		}
	}
	return nil
}

func (b *LocalBackend) projectForDirectory(dir string) (*Project, error) {
	dir = filepath.Clean(dir)
	var found *Project
	err := readDirRecords(filepath.Join(b.Root, "project"), func(data []byte) error {
		var p Project
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if found == nil && filepath.Clean(p.Worktree) == dir {
			found = &p
		}
		return nil
	})
	return found, err
}

func (b *LocalBackend) Sessions(ctx context.Context, directory string) ([]Session, error) {
	project, err := b.projectForDirectory(directory)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}
	var sessions []Session
	dir := filepath.Join(b.Root, "session", project.ID)
	err = readDirRecords(dir, func(data []byte) error {
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		sessions = append(sessions, s)
		return nil
	})
	return sessions, err
}

func (b *LocalBackend) sessionPath(id string) (string, error) {
	pattern := filepath.Join(b.Root, "session", "*", id+".json")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "glob %s", pattern)
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

func (b *LocalBackend) Session(ctx context.Context, id string) (*Session, error) {
	path, err := b.sessionPath(id)
	if err != nil || path == "" {
		return nil, err
	}
	var s Session
	ok, err := b.readJSON(path, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (b *LocalBackend) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	dir := filepath.Join(b.Root, "message", sessionID)
	err := readDirRecords(dir, func(data []byte) error {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		parts, err := b.readParts(m.ID)
		if err != nil {
			return err
		}
		m.Parts = parts
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortMessages(msgs)
	return msgs, nil
}

func (b *LocalBackend) readParts(messageID string) ([]Part, error) {
	var parts []Part
	dir := filepath.Join(b.Root, "part", messageID)
	err := readDirRecords(dir, func(data []byte) error {
		var p Part
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		parts = append(parts, p)
		return nil
	})
	return parts, err
}

func (b *LocalBackend) Todos(ctx context.Context, sessionID string) ([]TodoItem, error) {
	var todos []TodoItem
	path := filepath.Join(b.Root, "todo", sessionID+".json")
	if _, err := b.readJSON(path, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func (b *LocalBackend) CreateMessage(ctx context.Context, m Message) error {
	path := filepath.Join(b.Root, "message", m.SessionID, m.ID+".json")
	return b.writeJSON(path, m)
}

func (b *LocalBackend) CreatePart(ctx context.Context, p Part) error {
	path := filepath.Join(b.Root, "part", p.MessageID, p.ID+".json")
	return b.writeJSON(path, p)
}

// TouchSession rewrites only time.updated inside the stored record, leaving
// every other byte untouched, including fields this core does not model.
func (b *LocalBackend) TouchSession(ctx context.Context, id string) error {
	path, err := b.sessionPath(id)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	updated, err := sjson.SetBytes(data, "time.updated", time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "set time.updated")
	}
	return os.WriteFile(path, updated, 0o600)
}

func (b *LocalBackend) DeleteSession(ctx context.Context, id string) (int64, error) {
	var freed int64

	msgDir := filepath.Join(b.Root, "message", id)
	entries, err := os.ReadDir(msgDir)
	if err != nil && !os.IsNotExist(err) {
		logs.Warnf("records: listing messages of %s: %v", id, err)
	}
	for _, entry := range entries {
		messageID := strings.TrimSuffix(entry.Name(), ".json")
		freed += removeTree(filepath.Join(b.Root, "part", messageID))
	}
	freed += removeTree(msgDir)
	freed += removeFile(filepath.Join(b.Root, "todo", id+".json"))

	path, err := b.sessionPath(id)
	if err != nil {
		return freed, err
	}
	if path != "" {
		freed += removeFile(path)
	}
	return freed, nil
}

// removeFile deletes one file and returns its size, or zero when the file
// was absent or could not be removed.
func removeFile(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if err := os.Remove(path); err != nil {
		logs.Warnf("records: remove %s: %v", path, err)
		return 0
	}
	return info.Size()
}

// removeTree sizes a record directory (fastwalk, the dirs can hold many
// small files) and deletes it, returning the bytes actually reclaimed.
func removeTree(dir string) int64 {
	if _, err := os.Stat(dir); err != nil {
		return 0
	}
	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total.Add(info.Size())
			}
		}
		return nil
	})
	if err != nil {
		logs.Warnf("records: sizing %s: %v", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		logs.Warnf("records: remove %s: %v", dir, err)
		return 0
	}
	return total.Load()
}
