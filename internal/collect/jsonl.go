// Package collect drives the per-repository harvesting pipeline: pull
// request retrieval, task instance construction, and verification, each
// stage persisted as a JSON-lines log keyed by repository.
package collect

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/openevals/benchforge/internal/domain"
)

func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []T
	dec := json.NewDecoder(f)
	for {
		var rec T
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadPullRequests loads a harvested pull request log.
func ReadPullRequests(path string) ([]domain.PullRequest, error) {
	return readJSONL[domain.PullRequest](path)
}

// ReadTaskInstances loads a task instance log.
func ReadTaskInstances(path string) ([]domain.TaskInstance, error) {
	return readJSONL[domain.TaskInstance](path)
}
