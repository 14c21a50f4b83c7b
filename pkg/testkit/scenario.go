package testkit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Scenario is one request and what should come back. Any string in it may
// reference a variable as ${name}; see Run.
type Scenario struct {
	Name         string            `json:"name"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Token        string            `json:"token"`
	Headers      map[string]string `json:"headers"`
	Body         any               `json:"body"`
	ExpectedCode int               `json:"expectedCode"`
	// Expect is matched as a subset of the whole response body.
	Expect any `json:"expect"`
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.URL == "" {
		return fmt.Errorf("url is required")
	}
	if s.ExpectedCode == 0 {
		return fmt.Errorf("expectedCode is required")
	}
	if s.Method == "" {
		s.Method = "GET"
	}
	return nil
}

// LoadScenarios reads a JSON array of scenarios from path.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("testkit: read %q: %w", path, err)
	}
	var out []Scenario
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("testkit: parse %q: %w", path, err)
	}
	for i := range out {
		if err := out[i].validate(); err != nil {
			return nil, fmt.Errorf("testkit: %q scenario %d: %w", path, i, err)
		}
	}
	return out, nil
}

// Run executes each scenario as a subtest. vars fills ${name} placeholders,
// which lets a file refer to ids and tokens a test created at runtime.
func Run(t *testing.T, c *Client, vars map[string]string, scenarios []Scenario) {
	t.Helper()
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "${"+k+"}", v)
	}
	expand := strings.NewReplacer(pairs...).Replace

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			client := &Client{t: t, handler: c.handler, headers: c.headers}
			if tok := expand(s.Token); tok != "" {
				client = client.As(tok)
			}
			for k, v := range s.Headers {
				client = client.WithHeader(k, expand(v))
			}

			var body any
			if s.Body != nil {
				body = expandJSON(t, s.Body, expand)
			}
			res := client.Do(strings.ToUpper(s.Method), expand(s.URL), body)
			if res.Code != s.ExpectedCode {
				t.Fatalf("[%s] status expected=%d actual=%d\nbody: %s", s.Name, s.ExpectedCode, res.Code, res.Body)
			}
			if s.Expect != nil {
				AssertJSONSubset(t, expandJSON(t, s.Expect, expand), res.Body)
			}
		})
	}
}

// expandJSON substitutes variables inside every string of v.
func expandJSON(t *testing.T, v any, expand func(string) string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("testkit: marshal scenario value: %v", err)
	}
	return json.RawMessage(expand(string(raw)))
}

// RunFile loads path and runs it with Run.
func RunFile(t *testing.T, c *Client, vars map[string]string, path string) {
	t.Helper()
	scenarios, err := LoadScenarios(path)
	if err != nil {
		t.Fatal(err)
	}
	Run(t, c, vars, scenarios)
}
