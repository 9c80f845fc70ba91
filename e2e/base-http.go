package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

// BaseHTTPSuite runs against an already-started server pointed to by
// SERVER_ADDR. Each call logs the method, path, status, and latency,
// optionally with full JSON bodies.
type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	client *http.Client
	token  string
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end to end suite")
	}
	s.client = &http.Client{Timeout: 60 * time.Second}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Authenticate stores the token attached to every subsequent request.
func (s *BaseHTTPSuite) Authenticate(token string) {
	s.token = token
}

// Do sends one JSON request and decodes the envelope into out (when non-nil).
// It returns the raw status code so callers can assert on it.
func (s *BaseHTTPSuite) Do(method, path string, body any, out any) int {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reqBody = bytes.NewReader(raw)
	}

	url := strings.TrimRight(s.Config.ServerAddr, "/") + path
	req, err := http.NewRequest(method, url, reqBody)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	// Log full JSON request/response bodies if E2E_DEBUG_JSON is enabled
	if s.Config.DebugJSON {
		if body != nil {
			pretty, _ := json.MarshalIndent(body, "", "  ")
			fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s", pretty)
		}
		fmt.Fprintf(&logBuilder, "\nRESPONSE:\n%s", raw)
	}
	s.T().Log(logBuilder.String())

	if out != nil && len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
	return resp.StatusCode
}

// Envelope mirrors the server response shape.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// DataInto asserts a success envelope and decodes its data payload.
func (s *BaseHTTPSuite) DataInto(env Envelope, out any) {
	s.Require().Equal("success", env.Status, "unexpected error: %s", env.Message)
	s.Require().NoError(json.Unmarshal(env.Data, out))
}
