package pstore

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/relaymud/relaymud/common/crypto"
)

// ErrNotFound is returned by KV.Get when the requested key has not been set.
var ErrNotFound = errors.New("pstore: key not found")

const encPrefix = "enc:"

// KV is a plugin's settingvalues.txt (spec.md §6: "a plain key-per-line
// mapping; on load it is merged over the defaults"). Interface shape
// mirrors the teacher's config.Store (Get/Set/Delete/List), adapted from a
// SQLite table to a flat file since each plugin owns one small snapshot
// rather than a shared database.
//
// Keys marked secret are AES-256-GCM encrypted (common/crypto, the
// teacher's secrets-at-rest helper) before they touch disk, and the raw
// line is prefixed with "enc:" followed by the hex-encoded ciphertext so a
// reload can tell which keys to decrypt without a separate sidecar file.
type KV struct {
	mu     sync.Mutex
	path   string
	key    []byte // master key; nil means no secret values may be stored
	values map[string]string
	secret map[string]bool
}

// OpenKV loads path (if it exists) into memory. masterKey may be nil if the
// caller never stores secret values in this file; attempting to Set a
// secret key without one returns an error.
func OpenKV(path string, masterKey []byte) (*KV, error) {
	kv := &KV{
		path:   path,
		key:    masterKey,
		values: make(map[string]string),
		secret: make(map[string]bool),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return kv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pstore: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		if enc, ok := strings.CutPrefix(v, encPrefix); ok {
			if kv.key == nil {
				return nil, fmt.Errorf("pstore: %s: key %q is encrypted but no master key was provided", path, k)
			}
			ciphertext, err := hex.DecodeString(enc)
			if err != nil {
				return nil, fmt.Errorf("pstore: %s: decode key %q: %w", path, k, err)
			}
			plaintext, err := crypto.Decrypt(kv.key, ciphertext)
			if err != nil {
				return nil, fmt.Errorf("pstore: %s: decrypt key %q: %w", path, k, err)
			}
			kv.values[k] = string(plaintext)
			kv.secret[k] = true
			continue
		}
		kv.values[k] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pstore: scan %s: %w", path, err)
	}
	return kv, nil
}

// Get returns the value for key, or ErrNotFound.
func (kv *KV) Get(key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key and flushes the whole file (spec.md §6:
// "on-change sync"). secret marks the value for AES-256-GCM encryption at
// rest.
func (kv *KV) Set(key, value string, secret bool) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if secret && kv.key == nil {
		return fmt.Errorf("pstore: %s: cannot store secret key %q without a master key", kv.path, key)
	}

	kv.values[key] = value
	kv.secret[key] = secret
	return kv.flushLocked()
}

// Delete removes key, if present, and flushes. Idempotent.
func (kv *KV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.values, key)
	delete(kv.secret, key)
	return kv.flushLocked()
}

// List returns a snapshot of every key/value pair currently held.
func (kv *KV) List() map[string]string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	out := make(map[string]string, len(kv.values))
	for k, v := range kv.values {
		out[k] = v
	}
	return out
}

func (kv *KV) flushLocked() error {
	keys := make([]string, 0, len(kv.values))
	for k := range kv.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := kv.values[k]
		if kv.secret[k] {
			ciphertext, err := crypto.Encrypt(kv.key, []byte(v))
			if err != nil {
				return fmt.Errorf("pstore: encrypt %q: %w", k, err)
			}
			fmt.Fprintf(&b, "%s=%s%s\n", k, encPrefix, hex.EncodeToString(ciphertext))
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	tmp := kv.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("pstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, kv.path); err != nil {
		return fmt.Errorf("pstore: rename %s: %w", tmp, err)
	}
	return nil
}
