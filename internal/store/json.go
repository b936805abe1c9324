package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	PromptsFile    = "system_prompts.json"
	CharactersFile = "characters.json"
)

// JSONStore keeps each document in its own JSON file under a data directory.
// Missing files load as empty documents; every save rewrites the whole file.
type JSONStore struct {
	dir    string
	saveMu sync.Mutex // guards file writes
}

// NewJSONStore returns a store rooted at dir, creating the directory if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("JSON store configured")
	return &JSONStore{dir: dir}, nil
}

// Dir returns the data directory.
func (s *JSONStore) Dir() string { return s.dir }

func (s *JSONStore) LoadPersonas() (map[string]models.PersonaRecord, error) {
	var out map[string]models.PersonaRecord
	if err := s.load(CharactersFile, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]models.PersonaRecord{}
	}
	return out, nil
}

func (s *JSONStore) SavePersonas(personas map[string]models.PersonaRecord) error {
	if personas == nil {
		personas = map[string]models.PersonaRecord{}
	}
	return s.save(CharactersFile, personas)
}

func (s *JSONStore) LoadPrompts() (map[string]string, error) {
	var out map[string]string
	if err := s.load(PromptsFile, &out); err != nil {
		return nil, err
	}
	// A "null" document decodes to a nil map.
	if out == nil {
		out = map[string]string{}
	}
	return out, nil
}

func (s *JSONStore) SavePrompts(prompts map[string]string) error {
	if prompts == nil {
		prompts = map[string]string{}
	}
	return s.save(PromptsFile, prompts)
}

// load decodes name into v. A missing file leaves v untouched.
func (s *JSONStore) load(name string, v any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("No document found, starting empty")
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Document loaded")
	return nil
}

// save writes v to name via a temp file and rename.
func (s *JSONStore) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Document saved")
	return nil
}
