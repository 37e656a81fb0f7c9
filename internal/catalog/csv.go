package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV parses a movies file with the header movieId,title,genres. Column
// order is taken from the header; extra columns are ignored.
func ReadCSV(r io.Reader) ([]Movie, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	for _, required := range []string{"movieId", "title", "genres"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", required)
		}
	}

	var movies []Movie
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}
		field := func(name string) string {
			if i := cols[name]; i < len(rec) {
				return rec[i]
			}
			return ""
		}
		id, err := strconv.ParseInt(strings.TrimSpace(field("movieId")), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: invalid movieId %q", line, field("movieId"))
		}
		m := Movie{ID: id, Title: field("title"), Genres: field("genres")}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		movies = append(movies, m)
	}
	return movies, nil
}
