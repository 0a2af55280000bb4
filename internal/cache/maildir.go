package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	maildir "github.com/emersion/go-maildir"
)

// MaildirBodyStore is the default BodyStore backend: committed bodies live
// as maildir messages, with a small sidecar index mapping UIDL to the
// maildir-assigned key (maildir chooses its own filenames; it has no notion
// of caller-supplied keys). In-flight Put/Commit/Discard pairs are staged
// as plain temp files outside the maildir's tmp/ directory and only handed
// to maildir.Create on Commit, since maildir messages are meant to be
// delivered once complete, not streamed into piecemeal.
type MaildirBodyStore struct {
	dir       maildir.Dir
	indexPath string

	mu    sync.Mutex
	index map[string]string // uidl -> maildir key

	staging map[string]string // uidl -> staged temp file path, Put but not yet Commit/Discard
}

// OpenMaildirBodyStore initializes (if needed) the maildir at root and
// loads its UIDL index.
func OpenMaildirBodyStore(root string) (*MaildirBodyStore, error) {
	dir := maildir.Dir(root)
	if err := dir.Init(); err != nil {
		return nil, fmt.Errorf("cache: init maildir: %w", err)
	}
	s := &MaildirBodyStore{
		dir:       dir,
		indexPath: filepath.Join(root, ".popfetch-index"),
		index:     make(map[string]string),
		staging:   make(map[string]string),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MaildirBodyStore) loadIndex() error {
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read body index: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s.index); err != nil {
		return fmt.Errorf("cache: decode body index: %w", err)
	}
	return nil
}

func (s *MaildirBodyStore) saveIndexLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.index); err != nil {
		return fmt.Errorf("cache: encode body index: %w", err)
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("cache: write body index: %w", err)
	}
	return os.Rename(tmp, s.indexPath)
}

func (s *MaildirBodyStore) Get(uidl string) (io.ReadCloser, bool, error) {
	s.mu.Lock()
	key, ok := s.index[uidl]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	r, err := s.dir.Open(key)
	if err != nil {
		return nil, false, fmt.Errorf("cache: open body %s: %w", uidl, err)
	}
	return r, true, nil
}

func (s *MaildirBodyStore) Exists(uidl string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[uidl]
	return ok
}

// Put stages a write for uidl in a private temp file; the content only
// becomes visible via Get/Exists after Commit.
func (s *MaildirBodyStore) Put(uidl string) (io.WriteCloser, error) {
	f, err := os.CreateTemp("", "popfetch-body-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("cache: stage body %s: %w", uidl, err)
	}
	s.mu.Lock()
	s.staging[uidl] = f.Name()
	s.mu.Unlock()
	return f, nil
}

func (s *MaildirBodyStore) Commit(uidl string) error {
	s.mu.Lock()
	path, ok := s.staging[uidl]
	delete(s.staging, uidl)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cache: commit body %s: no staged write", uidl)
	}
	defer os.Remove(path)

	staged, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cache: reopen staged body %s: %w", uidl, err)
	}
	defer staged.Close()

	key, w, err := s.dir.Create(nil)
	if err != nil {
		return fmt.Errorf("cache: deliver body %s: %w", uidl, err)
	}
	if _, err := io.Copy(w, staged); err != nil {
		w.Close()
		return fmt.Errorf("cache: deliver body %s: %w", uidl, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cache: deliver body %s: %w", uidl, err)
	}

	s.mu.Lock()
	s.index[uidl] = key
	err = s.saveIndexLocked()
	s.mu.Unlock()
	return err
}

func (s *MaildirBodyStore) Discard(uidl string) error {
	s.mu.Lock()
	path, ok := s.staging[uidl]
	delete(s.staging, uidl)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return os.Remove(path)
}

func (s *MaildirBodyStore) Del(uidl string) error {
	s.mu.Lock()
	key, ok := s.index[uidl]
	if ok {
		delete(s.index, uidl)
	}
	var err error
	if ok {
		err = s.saveIndexLocked()
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err != nil {
		return err
	}
	if rerr := s.dir.Remove(key); rerr != nil && !os.IsNotExist(rerr) {
		return fmt.Errorf("cache: remove body %s: %w", uidl, rerr)
	}
	return nil
}

func (s *MaildirBodyStore) List(visit func(uidl string) error) error {
	s.mu.Lock()
	uidls := make([]string, 0, len(s.index))
	for u := range s.index {
		uidls = append(uidls, u)
	}
	s.mu.Unlock()
	for _, u := range uidls {
		if err := visit(u); err != nil {
			return err
		}
	}
	return nil
}
