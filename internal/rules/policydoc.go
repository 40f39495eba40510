package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// policyDocument is the subset of the IAM policy grammar the storage rules
// inspect.
type policyDocument struct {
	Statement statementList `json:"Statement"`
}

type statement struct {
	Effect    string          `json:"Effect"`
	Principal principal       `json:"Principal"`
	Action    stringList      `json:"Action"`
	Resource  stringList      `json:"Resource"`
	Condition json.RawMessage `json:"Condition"`
}

// statementList accepts a single statement object or an array.
type statementList []statement

func (s *statementList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var one statement
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = statementList{one}
		return nil
	}
	var many []statement
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// stringList accepts a string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*l = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

func (l stringList) contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// principal is "*" or a map of principal kinds to ids.
type principal struct {
	Wildcard bool
	AWS      stringList
}

func (p *principal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.Wildcard = s == "*"
		return nil
	}
	var m map[string]stringList
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	p.AWS = m["AWS"]
	p.Wildcard = p.AWS.contains("*")
	return nil
}

// parsePolicy decodes a policy document. IAM returns role policies
// URL-encoded; both forms are accepted.
func parsePolicy(raw string) (*policyDocument, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "%7B") || strings.HasPrefix(raw, "%7b") {
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("decode policy: %w", err)
		}
		raw = decoded
	}
	var doc policyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &doc, nil
}

// actionMatches reports whether any action in actions grants one of want.
// IAM actions are case-insensitive and may carry "*" and "?" wildcards.
func actionMatches(actions stringList, want ...string) bool {
	for _, a := range actions {
		pattern := strings.ToLower(a)
		for _, w := range want {
			if ok, err := path.Match(pattern, strings.ToLower(w)); err == nil && ok {
				return true
			}
		}
	}
	return false
}
