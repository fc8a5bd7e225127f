package external

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// request is written to the provider's stdin as a single JSON document.
type request struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout"`
}

// response is the provider's final stdout line.
type response struct {
	Success  bool           `json:"success"`
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	HTML     string         `json:"html"`
	Markdown string         `json:"markdown"`
	Text     string         `json:"text"`
	Links    []string       `json:"links"`
	Images   []string       `json:"images"`
	Metadata map[string]any `json:"metadata"`
	Error    string         `json:"error"`
}

func encodeRequest(url string, timeout time.Duration) ([]byte, error) {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	payload, err := json.Marshal(request{URL: url, Timeout: secs})
	if err != nil {
		return nil, fmt.Errorf("encode crawl request: %w", err)
	}
	return payload, nil
}

// lastLine returns the final non-empty line of out. Earlier lines are
// diagnostics the provider may print.
func lastLine(out []byte) []byte {
	lines := bytes.Split(out, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if line := bytes.TrimSpace(lines[i]); len(line) > 0 {
			return line
		}
	}
	return nil
}

func decodeResponse(out []byte) (response, error) {
	line := lastLine(out)
	if line == nil {
		return response{}, fmt.Errorf("%w: empty provider output", lead.ErrProtocol)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, fmt.Errorf("%w: decode provider response: %v", lead.ErrProtocol, err)
	}
	return resp, nil
}

func (r response) text() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Markdown
}

func (r response) err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return errors.New("external crawler reported failure")
	}
	return fmt.Errorf("external crawler: %s", r.Error)
}
