package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// One zstd frame per line, so a file left open by a killed process still
	// decodes and a restart can append new frames after it.
	if err := w.enc.Close(); err != nil {
		return err
	}
	w.enc.Reset(w.f)
	return nil
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// InputEntry records one handled rollup request and the world state after it.
type InputEntry struct {
	RunID       string  `json:"run_id"`
	Cycle       uint64  `json:"cycle"`
	RequestType string  `json:"request_type"`
	Payload     string  `json:"payload"`
	InputIndex  *uint64 `json:"input_index,omitempty"`
	Status      string  `json:"status"`
	BodyID      *int    `json:"body_id,omitempty"`
	Step        uint64  `json:"step"`
	Digest      string  `json:"digest"`
}

const inputsPrefix = "inputs"

// InputJournal writes one compressed JSONL entry per handled request.
type InputJournal struct{ w *JSONLZstdWriter }

func NewInputJournal(dataDir string) *InputJournal {
	return &InputJournal{w: NewJSONLZstdWriter(filepath.Join(dataDir, "journal"), inputsPrefix)}
}

func (j *InputJournal) WriteInput(e InputEntry) error { return j.w.Write(e) }
func (j *InputJournal) Close() error                  { return j.w.Close() }

// ListInputFiles returns journal files in chronological order.
func ListInputFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, inputsPrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadInputs decodes every entry of one journal file, calling fn in order.
// A torn last line (the writer died mid-entry) ends the file without error.
func ReadInputs(path string, fn func(InputEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	r := bufio.NewReaderSize(dec, 64*1024)
	line := 0
	for {
		b, err := r.ReadBytes('\n')
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line+1, err)
		}
		line++
		if b = bytes.TrimSpace(b); len(b) > 0 {
			var e InputEntry
			if uerr := json.Unmarshal(b, &e); uerr != nil {
				return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, uerr)
			}
			if ferr := fn(e); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return nil
		}
	}
}
