package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Record is one transcription outcome in the command log.
type Record struct {
	ID         string    `json:"id"`
	TSStart    time.Time `json:"ts_start"`
	TSEnd      time.Time `json:"ts_end"`
	Text       string    `json:"text"`
	Backend    string    `json:"backend"`
	Confidence float64   `json:"confidence,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	Wake       bool      `json:"wake"`
	Command    string    `json:"command,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FileStore appends records as JSON lines, one file per session.
type FileStore struct {
	fs      afero.Fs
	baseDir string
	mutex   sync.Mutex
}

func NewFileStore(fs afero.Fs, baseDir string) (*FileStore, error) {
	commandDir := filepath.Join(baseDir, "commands")
	if err := fs.MkdirAll(commandDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create command log directory: %w", err)
	}

	return &FileStore{
		fs:      fs,
		baseDir: baseDir,
	}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.baseDir, "commands", fmt.Sprintf("%s.jsonl", sessionID))
}

// Append writes rec to the end of the session's log.
func (s *FileStore) Append(sessionID string, rec Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	file, err := s.fs.OpenFile(s.path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open command log: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("utterance_id", rec.ID).
		Msg("Appended command record")
	return nil
}

// Load reads back every record of a session, oldest first.
func (s *FileStore) Load(sessionID string) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	file, err := s.fs.Open(s.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to open command log: %w", err)
	}
	defer file.Close()

	var records []Record
	decoder := json.NewDecoder(file)
	for decoder.More() {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", time.Now().Format("20060102_150405"))
}
