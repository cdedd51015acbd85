package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// readInput reads a whole file, or stdin when path is "-" or empty.
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		return data, eris.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	return data, eris.Wrapf(err, "read %s", path)
}

// decodeObservations accepts a bare JSON array of observations or an object
// with an "observations" key.
func decodeObservations(data []byte) ([]model.Observation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, eris.New("no observations supplied")
	}
	var obs []model.Observation
	if data[0] == '[' {
		if err := decodeJSON(data, &obs); err != nil {
			return nil, eris.Wrap(err, "decode observations")
		}
		return obs, nil
	}
	var wrapper struct {
		Observations []model.Observation `json:"observations"`
	}
	if err := decodeJSON(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "decode observations")
	}
	return wrapper.Observations, nil
}

// decodeJSON keeps numbers as json.Number so measurement values keep their
// precision until coercion.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
