package commands

import (
	"bufio"
	"fmt"
	"os"
)

// History is a bounded FIFO of lines that came from a client (not from
// plugins or from `!N` replay itself), persisted to a file so it survives
// restarts (spec.md §4.5: "A bounded in-memory list of the last historysize
// lines... persisted to a per-plugin file").
type History struct {
	path string
	size int
	rows []string
}

// NewHistory creates a History bounded to size entries, persisted at path.
// An empty path disables persistence (used in tests).
func NewHistory(path string, size int) *History {
	if size <= 0 {
		size = 50
	}
	return &History{path: path, size: size}
}

// Load reads prior history from disk, ignoring a missing file.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		h.rows = append(h.rows, scanner.Text())
	}
	h.trim()
	return scanner.Err()
}

// Add appends a line, trimming the oldest entry if over size, and persists.
func (h *History) Add(line string) error {
	h.rows = append(h.rows, line)
	h.trim()
	return h.save()
}

func (h *History) trim() {
	if len(h.rows) > h.size {
		h.rows = h.rows[len(h.rows)-h.size:]
	}
}

func (h *History) save() error {
	if h.path == "" {
		return nil
	}
	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range h.rows {
		fmt.Fprintln(w, row)
	}
	return w.Flush()
}

// Get returns history entry N (1-indexed, most recent = highest N, matching
// the original's `!N` replay numbering) and whether it exists (spec.md §4.5:
// "`!N` re-enqueues the Nth history entry").
func (h *History) Get(n int) (string, bool) {
	if n < 1 || n > len(h.rows) {
		return "", false
	}
	return h.rows[n-1], true
}

// All returns every stored history entry, oldest first.
func (h *History) All() []string {
	out := make([]string, len(h.rows))
	copy(out, h.rows)
	return out
}
