// Package catalog manages the movie records the index is built from. Every
// mutation is followed by a corpus change announcement so the indexer can
// rebuild.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxTitleLength  = 512
	maxGenresLength = 512
)

// Movie is one catalog record. Its document text is "<title> | <genres>".
type Movie struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Genres string `json:"genres"`
}

// Text is the document indexed for m.
func (m Movie) Text() string {
	return m.Title + " | " + m.Genres
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Validate trims m in place and checks field constraints. A zero ID is
// allowed and means "assign one".
func (m *Movie) Validate() error {
	errs := make(map[string]string)
	m.Title = strings.TrimSpace(m.Title)
	m.Genres = strings.TrimSpace(m.Genres)

	if m.ID < 0 {
		errs["id"] = "id must not be negative"
	}
	if m.Title == "" {
		errs["title"] = "title is required"
	} else if len(m.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(m.Genres) > maxGenresLength {
		errs["genres"] = fmt.Sprintf("genres must be at most %d characters", maxGenresLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
