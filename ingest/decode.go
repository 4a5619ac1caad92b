package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadCSVRows decodes a broker CSV export. The first record is the header;
// every later record becomes a Row keyed by header names. Blank cells are
// left out so alias lookup falls through to the next spelling.
func ReadCSVRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make(Row, len(header))
		for i, v := range rec {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if v = strings.TrimSpace(v); v != "" {
				row[header[i]] = v
			}
		}
		if len(row) == 0 {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadJSONRows decodes either a JSON array of objects or an object with a
// "trades" array. Numbers are kept as json.Number so no precision is lost
// before normalization.
func ReadJSONRows(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	switch data[0] {
	case '[':
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode json rows: %w", err)
		}
		return rows, nil
	case '{':
		var wrapped struct {
			Trades []Row `json:"trades"`
		}
		if err := dec.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode json rows: %w", err)
		}
		if wrapped.Trades == nil {
			return nil, errors.New(`json object has no "trades" array`)
		}
		return wrapped.Trades, nil
	}
	return nil, fmt.Errorf("unexpected json starting with %q", data[0])
}
