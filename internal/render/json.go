package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shortontech/trackcheck/internal/tracking"
)

// JSON writes the report as indented JSON followed by a newline.
func JSON(w io.Writer, r tracking.Report) error {
	b, err := MarshalJSON(r)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// MarshalJSON returns the exact bytes JSON writes, for signing.
func MarshalJSON(r tracking.Report) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return append(b, '\n'), nil
}
