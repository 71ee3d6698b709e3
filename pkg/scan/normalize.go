package scan

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/mitchellh/mapstructure"
)

const (
	defaultFindingType    = "unknown"
	defaultFindingSnippet = "No snippet available"
)

// Finding lists, folded into one list in this order
var buckets = []string{"critical", "high", "medium", "low", "warning", "results"}

type Finding struct {
	Type    string `json:"type"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

type rawFinding struct {
	Type       string `mapstructure:"type"`
	Rule       string `mapstructure:"rule"`
	TestID     string `mapstructure:"test_id"`
	CheckID    string `mapstructure:"check_id"`
	Line       int    `mapstructure:"line"`
	LineNumber int    `mapstructure:"line_number"`
	Snippet    string `mapstructure:"snippet"`
	Code       string `mapstructure:"code"`
}

// Parse scanner stdout. Accepted shapes are an object keyed by severity holding finding lists,
// and an object with a "results" finding list. empty is true for "{}".
func normalize(stdout []byte) (findings []*Finding, empty bool, err error) {
	var doc map[string]interface{}
	if err = json.Unmarshal(bytes.TrimSpace(stdout), &doc); err != nil {
		return
	}
	if len(doc) == 0 {
		empty = true
		return
	}

	lowered := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		lowered[strings.ToLower(key)] = value
	}

	for _, bucket := range buckets {
		list, ok := lowered[bucket].([]interface{})
		if !ok {
			continue
		}
		for i, item := range list {
			var finding *Finding
			if finding, err = normalizeFinding(item); err != nil {
				err = errors.Wrapf(err, "unable to decode %s finding %d", bucket, i)
				return
			}
			findings = append(findings, finding)
		}
	}

	return
}

func normalizeFinding(item interface{}) (result *Finding, err error) {
	var raw rawFinding
	if err = mapstructure.WeakDecode(item, &raw); err != nil {
		return
	}

	result = &Finding{
		Type:    firstNonEmpty(raw.Type, raw.Rule, raw.TestID, raw.CheckID, defaultFindingType),
		Line:    raw.Line,
		Snippet: firstNonEmpty(strings.TrimSpace(raw.Snippet), strings.TrimSpace(raw.Code), defaultFindingSnippet),
	}
	if result.Line < 1 {
		result.Line = raw.LineNumber
	}
	if result.Line < 1 {
		result.Line = 1
	}

	return
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
