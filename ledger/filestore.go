package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the confirmed set as a plain JSON array of hex pubkey
// strings, the format the surrounding tooling reads and writes. The pending
// journal lives in a sidecar file next to it. Every write rewrites the whole
// file through a temp file and rename, so a crash leaves either the old or
// the new content, never a torn file.
type FileStore struct {
	path          string
	confirmed     []string
	pending       []*PendingTx
	loaded        bool
	pendingLoaded bool
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) pendingPath() string {
	if strings.HasSuffix(s.path, ".json") {
		return strings.TrimSuffix(s.path, ".json") + ".pending.json"
	}
	return s.path + ".pending"
}

func (s *FileStore) LoadConfirmed() ([]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.confirmed = nil
		s.loaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var pubkeys []string
	if err := json.Unmarshal(raw, &pubkeys); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	normalized := make([]string, 0, len(pubkeys))
	for _, pk := range pubkeys {
		n, err := normalizePubkey(pk)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
		}
		normalized = append(normalized, n)
	}

	s.confirmed = normalized
	s.loaded = true
	return append([]string(nil), normalized...), nil
}

func (s *FileStore) AppendConfirmed(pubkey string, txHash string) error {
	if !s.loaded {
		if _, err := s.LoadConfirmed(); err != nil {
			return err
		}
	}

	// the file format keeps pubkeys only; the tx hash stays in the logs
	s.confirmed = append(s.confirmed, pubkey)
	return writeFileAtomic(s.path, s.confirmed)
}

func (s *FileStore) LoadPending() ([]*PendingTx, error) {
	raw, err := os.ReadFile(s.pendingPath())
	if os.IsNotExist(err) {
		s.pending = nil
		s.pendingLoaded = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending journal: %w", err)
	}

	var pending []*PendingTx
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.pendingPath(), err)
	}

	s.pending = pending
	s.pendingLoaded = true
	return append([]*PendingTx(nil), pending...), nil
}

func (s *FileStore) PutPending(tx *PendingTx) error {
	if !s.pendingLoaded {
		if _, err := s.LoadPending(); err != nil {
			return err
		}
	}

	replaced := false
	for i, p := range s.pending {
		if p.Pubkey == tx.Pubkey {
			s.pending[i] = tx
			replaced = true
			break
		}
	}
	if !replaced {
		s.pending = append(s.pending, tx)
	}
	return writeFileAtomic(s.pendingPath(), s.pending)
}

func (s *FileStore) DeletePending(pubkey string) error {
	if !s.pendingLoaded {
		if _, err := s.LoadPending(); err != nil {
			return err
		}
	}

	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.Pubkey != pubkey {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	return writeFileAtomic(s.pendingPath(), s.pending)
}

func (s *FileStore) Close() error {
	return nil
}

// writeFileAtomic marshals v and swaps it in place of path. The temp file is
// synced before the rename so the rename never publishes a short write.
func writeFileAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

// normalizePubkey lowercases, strips an optional 0x prefix and insists on a
// 48-byte hex string. Anything else in a ledger file means the file is not
// ours to interpret.
func normalizePubkey(pubkey string) (string, error) {
	n := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(pubkey), "0x"))
	b, err := hex.DecodeString(n)
	if err != nil {
		return "", fmt.Errorf("pubkey %q is not hex", pubkey)
	}
	if len(b) != 48 {
		return "", fmt.Errorf("pubkey %q is %d bytes, want 48", pubkey, len(b))
	}
	return n, nil
}
