package courses

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	appLog "ttcal/internal/log"
	"ttcal/internal/model"
)

// Load reads the course metadata file, a JSON object keyed by course
// identifier:
//
//	{"CR00": {"name": "...", "teachers": "..."}, "CR01": {...}}
//
// The result is treated as read-only for the rest of the run.
func Load(path string) (model.Courses, error) {
	if path == "" {
		return nil, errors.New("courses path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read courses: %w", err)
	}

	courses := model.Courses{}
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil, fmt.Errorf("decode courses %s: %w", path, err)
	}

	appLog.Debug("course metadata loaded", "path", path, "count", len(courses))
	return courses, nil
}
