package upstream

import (
	"bufio"
	"bytes"
	"encoding/json"

	"go.uber.org/zap"
)

// ReduceOllamaNDJSON parses a newline-delimited JSON body from Ollama's
// native /api/chat endpoint and returns the last record, or the first record
// whose "done" field is true, whichever comes first. Blank and unparseable
// lines are skipped with a warning, per section 4.7.
func ReduceOllamaNDJSON(log *zap.SugaredLogger, body []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var last []byte
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var probe struct {
			Done bool `json:"done"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			if log != nil {
				log.Warnw("skipping unparseable ndjson line", "error", err)
			}
			continue
		}
		record := append([]byte(nil), line...)
		last = record
		if probe.Done {
			return record, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return last, nil
}
