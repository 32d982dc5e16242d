package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportProfile is a saved export definition, loaded from YAML or JSON.
// It lets the same export be rerun without repeating every flag.
type ExportProfile struct {
	// Connection selects the platform instance and workspace.
	Connection ConnectionProfile `json:"connection" yaml:"connection"`

	// Query specifies what the export retrieves.
	Query Query `json:"query" yaml:"query"`

	// Processing controls paging and streaming.
	Processing ProcessingProfile `json:"processing" yaml:"processing"`

	// Timeouts specifies timeout configurations for different operations.
	Timeouts TimeoutProfile `json:"timeouts" yaml:"timeouts"`

	// Output selects the transcript format: "text" or "jsonl".
	Output string `json:"output" yaml:"output"`
}

// ConnectionProfile holds connection settings. Secrets are better supplied
// through the environment than stored in a profile.
type ConnectionProfile struct {
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	WorkspaceID int     `json:"workspace_id" yaml:"workspace_id"`
	Username    string  `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string  `json:"password,omitempty" yaml:"password,omitempty"`
	Token       string  `json:"token,omitempty" yaml:"token,omitempty"`
	RateLimit   float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// ProcessingProfile controls the export loop.
type ProcessingProfile struct {
	// BlockSize is the number of rows per fetch. Required.
	BlockSize int `json:"block_size" yaml:"block_size"`

	// StreamWorkers bounds concurrent long-text streams within a block.
	StreamWorkers int `json:"stream_workers" yaml:"stream_workers"`

	// Encoding is the long-text stream encoding ("utf-16le" or "utf-8").
	Encoding string `json:"encoding" yaml:"encoding"`
}

// TimeoutProfile specifies timeouts.
type TimeoutProfile struct {
	// Overall bounds the whole export. Zero means no limit.
	Overall Duration `json:"overall" yaml:"overall"`

	// Request bounds each HTTP request.
	Request Duration `json:"request" yaml:"request"`
}

// Duration is a time.Duration written as a string such as "30s" in profiles.
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultExportProfile returns a profile with the defaults the CLI uses.
func DefaultExportProfile() *ExportProfile {
	return &ExportProfile{
		Query: Query{
			ObjectType:                     ObjectTypeRef{ArtifactTypeID: ArtifactTypeDocument},
			MaxCharactersForLongTextValues: 1024,
		},
		Processing: ProcessingProfile{
			StreamWorkers: 1,
			Encoding:      string(EncodingUTF16LE),
		},
		Timeouts: TimeoutProfile{
			Request: Duration(30 * time.Second),
		},
		Output: "text",
	}
}

// Validate ensures the profile has usable values. Block size has no default.
func (p *ExportProfile) Validate() error {
	if p.Connection.Endpoint == "" {
		return &ConfigError{Field: "connection.endpoint", Message: "endpoint is required"}
	}
	if p.Connection.WorkspaceID <= 0 {
		return &ConfigError{Field: "connection.workspace_id", Message: "workspace id must be positive"}
	}
	if err := p.Query.Validate(); err != nil {
		return &ConfigError{Field: "query", Message: err.Error()}
	}
	if p.Processing.BlockSize < 1 {
		return &ConfigError{Field: "processing.block_size", Message: "block size must be a positive integer"}
	}
	if _, err := ParseTextEncoding(p.Processing.Encoding); err != nil {
		return &ConfigError{Field: "processing.encoding", Message: err.Error()}
	}
	switch p.Output {
	case "":
		p.Output = "text"
	case "text", "jsonl":
	default:
		return &ConfigError{Field: "output", Message: fmt.Sprintf("unknown output format %q", p.Output)}
	}
	return nil
}

// Apply copies the profile's connection settings into config.
func (p *ExportProfile) Apply(config *Config) {
	config.Endpoint = p.Connection.Endpoint
	config.WorkspaceID = p.Connection.WorkspaceID
	if p.Connection.Token != "" {
		config.Credentials = BearerCredentials{Token: p.Connection.Token}
	} else if p.Connection.Username != "" {
		config.Credentials = BasicCredentials{Username: p.Connection.Username, Password: p.Connection.Password}
	}
	if p.Connection.RateLimit > 0 {
		config.RateLimit = p.Connection.RateLimit
	}
	if p.Timeouts.Request > 0 {
		config.Timeout = time.Duration(p.Timeouts.Request)
	}
}

// SessionOptions returns the session options the profile describes.
func (p *ExportProfile) SessionOptions() SessionOptions {
	enc, _ := ParseTextEncoding(p.Processing.Encoding)
	return SessionOptions{
		Query:         p.Query,
		BlockSize:     p.Processing.BlockSize,
		StreamWorkers: p.Processing.StreamWorkers,
		TextEncoding:  enc,
	}
}

// ProfileLoader loads export profiles from files.
type ProfileLoader struct {
	searchPaths []string
}

// NewProfileLoader creates a loader that resolves relative names against
// searchPaths, in order.
//
// Example:
//
//	loader := NewProfileLoader([]string{".", "/etc/exportclient"})
func NewProfileLoader(searchPaths []string) *ProfileLoader {
	return &ProfileLoader{searchPaths: searchPaths}
}

// LoadFromFile loads a profile. Values missing from the file keep the
// defaults of DefaultExportProfile.
//
// Arguments:
//   - filename: Path to a .yaml, .yml or .json file.
//
// Returns:
//   - *ExportProfile: The loaded profile, not yet validated.
//   - error: Error if the file could not be found, read or parsed.
func (pl *ProfileLoader) LoadFromFile(filename string) (*ExportProfile, error) {
	filePath := filename
	if !filepath.IsAbs(filename) {
		found, err := pl.findProfile(filename)
		if err != nil {
			return nil, fmt.Errorf("profile not found: %s", filename)
		}
		filePath = found
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", filePath, err)
	}

	profile := DefaultExportProfile()
	switch filepath.Ext(filePath) {
	case ".json":
		if err := json.Unmarshal(content, profile); err != nil {
			return nil, fmt.Errorf("failed to parse JSON profile %s: %w", filePath, err)
		}
	default:
		if err := yaml.Unmarshal(content, profile); err != nil {
			return nil, fmt.Errorf("failed to parse YAML profile %s: %w", filePath, err)
		}
	}

	return profile, nil
}

// SaveToFile writes a profile, choosing the format from the extension.
// Passwords are never written.
func (pl *ProfileLoader) SaveToFile(filename string, profile *ExportProfile) error {
	cp := *profile
	cp.Connection.Password = ""

	var (
		content []byte
		err     error
	)
	switch filepath.Ext(filename) {
	case ".json":
		content, err = json.MarshalIndent(&cp, "", "  ")
	default:
		content, err = yaml.Marshal(&cp)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(filename, content, 0o600); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", filename, err)
	}

	return nil
}

// findProfile searches for a profile in the search paths.
func (pl *ProfileLoader) findProfile(filename string) (string, error) {
	for _, searchPath := range pl.searchPaths {
		fullPath := filepath.Join(searchPath, filename)
		if _, err := os.Stat(fullPath); err == nil {
			return fullPath, nil
		}
	}
	return "", fmt.Errorf("file not found in search paths")
}
