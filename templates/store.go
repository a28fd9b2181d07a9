// Package templates persists template documents on a two-level
// category/id directory tree and keeps board scaffolding decoupled from
// how templates are authored and stored.
package templates

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/BACON-AI-CLOUD/bacon-ai-boards/domain"
)

const templateFileName = "template.json"

// ErrNotFound is returned when no template with the requested id exists.
var ErrNotFound = errors.New("template not found")

// ErrModified is returned by Save when the on-disk document changed after
// it was loaded. The caller must re-load and retry; overwriting would
// silently drop the other writer's update.
var ErrModified = errors.New("template modified on disk since load")

// Summary is the discovery-time view of one template.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Complexity  string   `json:"complexity"`
	Tags        []string `json:"tags"`
	PhaseCount  int      `json:"phasesCount"`
	TaskCount   int      `json:"tasksCount"`
	Path        string   `json:"-"`
}

// Warning reports a document that discovery had to skip. Discovery never
// fails as a whole because one template is malformed, but the skip is no
// longer silent.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Store reads and writes template documents under root/category/id/template.json.
type Store struct {
	root   string
	logger *log.Logger

	mu sync.Mutex
	// content fingerprint per template id, recorded at load time and
	// checked before save
	fingerprints map[string]string
}

// NewStore creates a store rooted at the given directory. The directory
// does not need to exist yet; discovery over a missing root yields no
// templates.
func NewStore(root string, logger *log.Logger) *Store {
	return &Store{
		root:         root,
		logger:       logger,
		fingerprints: make(map[string]string),
	}
}

// Root returns the directory the store scans.
func (s *Store) Root() string { return s.root }

// Discover scans the category/id tree for template documents. A non-empty
// category restricts the scan to that subdirectory. Files that fail to
// parse or validate are skipped and reported as warnings; one bad document
// never fails the whole listing.
func (s *Store) Discover(category string) ([]Summary, []Warning) {
	var summaries []Summary
	var warnings []Warning

	categories, err := os.ReadDir(s.root)
	if err != nil {
		return summaries, warnings
	}

	for _, catEntry := range categories {
		if !catEntry.IsDir() {
			continue
		}
		if category != "" && catEntry.Name() != category {
			continue
		}
		catDir := filepath.Join(s.root, catEntry.Name())
		ids, err := os.ReadDir(catDir)
		if err != nil {
			continue
		}
		for _, idEntry := range ids {
			if !idEntry.IsDir() {
				continue
			}
			path := filepath.Join(catDir, idEntry.Name(), templateFileName)
			tmpl, err := readDocument(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				if s.logger != nil {
					s.logger.WithFields(log.Fields{"path": path, "error": err.Error()}).Warn("skipping invalid template")
				}
				warnings = append(warnings, Warning{Path: path, Reason: err.Error()})
				continue
			}

			id := tmpl.Meta.ID
			if id == "" {
				id = idEntry.Name()
			}
			summaries = append(summaries, Summary{
				ID:          id,
				Name:        tmpl.Meta.Name,
				Version:     orDefault(tmpl.Meta.Version, "0.0.0"),
				Category:    catEntry.Name(),
				Description: tmpl.Meta.Description,
				Author:      orDefault(tmpl.Meta.Author, "Unknown"),
				Complexity:  orDefault(tmpl.Meta.Complexity, "medium"),
				Tags:        tmpl.Meta.Tags,
				PhaseCount:  len(tmpl.Phases),
				TaskCount:   tmpl.TaskCount(),
				Path:        path,
			})
		}
	}
	return summaries, warnings
}

// Locate finds the discovery summary for a template id.
func (s *Store) Locate(id string) (Summary, error) {
	summaries, _ := s.Discover("")
	for _, sum := range summaries {
		if sum.ID == id {
			return sum, nil
		}
	}
	return Summary{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Load reads and validates the full document for a template id. The
// document's content fingerprint is recorded so a later Save can detect
// concurrent modification.
func (s *Store) Load(id string) (*domain.Template, error) {
	sum, err := s.Locate(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(sum.Path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", id, err)
	}
	tmpl, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.fingerprints[id] = fingerprint(data)
	s.mu.Unlock()
	return tmpl, nil
}

// Save writes the full document back to disk. When the template was
// previously loaded through this store, the write is refused with
// ErrModified if the on-disk content no longer matches what was loaded.
// An empty category falls back to the category the template currently
// lives in, or "framework" for a brand-new template.
func (s *Store) Save(tmpl *domain.Template, id, category string) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	if category == "" {
		if sum, err := s.Locate(id); err == nil {
			category = sum.Category
		} else {
			category = "framework"
		}
	}

	dir := filepath.Join(s.root, category, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	path := filepath.Join(dir, templateFileName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if loaded, ok := s.fingerprints[id]; ok {
		if onDisk, err := os.ReadFile(path); err == nil && fingerprint(onDisk) != loaded {
			return fmt.Errorf("save template %s: %w", id, ErrModified)
		}
	}

	data, err := sonic.ConfigStd.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return fmt.Errorf("encode template %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, templateFileName+".*")
	if err != nil {
		return fmt.Errorf("save template %s: %w", id, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("save template %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save template %s: %w", id, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save template %s: %w", id, err)
	}

	s.fingerprints[id] = fingerprint(data)
	return nil
}

func readDocument(path string) (*domain.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (*domain.Template, error) {
	var tmpl domain.Template
	if err := sonic.ConfigStd.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
