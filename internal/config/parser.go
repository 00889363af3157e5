package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   *slog.Logger
}

// NewParser creates a new config parser. detector may be nil, in which case
// no platform table is injected.
func NewParser(detector platform.Detector, logger *slog.Logger) *Parser {
	return &Parser{detector: detector, logger: logging.Ensure(logger)}
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Load reads the config at path. With an empty path the default location is
// used, and a missing default file yields Defaults.
func (p *Parser) Load(ctx context.Context, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, FileName)
	}

	cfg, err := p.ParseFile(ctx, path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			p.logger.Debug("no config file, using defaults", "path", path)
			return Defaults(), nil
		}
		return nil, err
	}
	p.logger.Debug("loaded config", "path", path)
	return cfg, nil
}

// ParseFile parses the Lua config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxFileSize),
		}
	}

	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return p.extractConfig(L)
}

var knownSections = map[string]bool{
	luaFieldCacheDir: true,
	luaFieldListing:  true,
	luaFieldFetch:    true,
	luaFieldDeploy:   true,
	luaFieldTrust:    true,
	luaFieldSelect:   true,
	luaFieldOutput:   true,
}

// extractConfig reads the global storeagent table over Defaults.
func (p *Parser) extractConfig(L *lua.LState) (*Config, error) {
	global := L.GetGlobal(luaGlobal)
	if global.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: fmt.Sprintf("missing or invalid '%s' table", luaGlobal),
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	root := fields{table: global.(*lua.LTable)}
	root.table.ForEach(func(key, _ lua.LValue) {
		if !knownSections[key.String()] {
			p.logger.Warn("unknown config key", "key", key.String())
		}
	})

	cfg := Defaults()
	steps := []func() error{
		func() error { return root.str(luaFieldCacheDir, &cfg.CacheDir) },
		func() error {
			return root.section(luaFieldListing, func(s fields) error {
				return first(
					s.str(luaFieldEndpoint, &cfg.Listing.Endpoint),
					s.str(luaFieldRing, &cfg.Listing.Ring),
					s.str(luaFieldUserAgent, &cfg.Listing.UserAgent),
					s.duration(luaFieldTimeout, &cfg.Listing.Timeout),
				)
			})
		},
		func() error {
			return root.section(luaFieldFetch, func(s fields) error {
				return first(
					s.duration(luaFieldTimeout, &cfg.Fetch.Timeout),
					s.integer(luaFieldRetries, &cfg.Fetch.Retries),
					s.size(luaFieldMaxBytes, &cfg.Fetch.MaxBytes),
				)
			})
		},
		func() error {
			return root.section(luaFieldDeploy, func(s fields) error {
				return first(
					s.str(luaFieldBackend, &cfg.Deploy.Backend),
					s.duration(luaFieldTimeout, &cfg.Deploy.Timeout),
					s.str(luaFieldUser, &cfg.Deploy.User),
				)
			})
		},
		func() error {
			return root.section(luaFieldTrust, func(s fields) error {
				return first(
					s.str(luaFieldBackend, &cfg.Trust.Backend),
					s.str(luaFieldStore, &cfg.Trust.Store),
					s.boolean(luaFieldUserStore, &cfg.Trust.UserStore),
					s.str(luaFieldDir, &cfg.Trust.Dir),
				)
			})
		},
		func() error {
			return root.section(luaFieldSelect, func(s fields) error {
				return s.str(luaFieldPreferredArch, &cfg.Select.PreferredArch)
			})
		},
		func() error {
			return root.section(luaFieldOutput, func(s fields) error {
				return first(
					s.str(luaFieldPath, &cfg.Output.Path),
					s.str(luaFieldFormat, &cfg.Output.Format),
				)
			})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return cfg, nil
}

// first returns the first non-nil error.
func first(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// fields reads typed values from a Lua table. Absent (nil) values leave the
// destination untouched.
type fields struct {
	table  *lua.LTable
	prefix string
}

func (f fields) name(key string) string {
	if f.prefix == "" {
		return key
	}
	return f.prefix + "." + key
}

func (f fields) typeError(key string, want string, got lua.LValue) error {
	return &ParseError{
		Message: "invalid config value",
		Detail:  fmt.Sprintf("%s: expected %s, got %s", f.name(key), want, got.Type()),
	}
}

func (f fields) section(key string, read func(fields) error) error {
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTTable:
		return read(fields{table: v.(*lua.LTable), prefix: f.name(key)})
	default:
		return f.typeError(key, "table", v)
	}
}

func (f fields) str(key string, dst *string) error {
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTString:
		*dst = v.String()
		return nil
	default:
		return f.typeError(key, "string", v)
	}
}

func (f fields) boolean(key string, dst *bool) error {
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
		return nil
	default:
		return f.typeError(key, "boolean", v)
	}
}

func (f fields) number(key string) (float64, bool, error) {
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return 0, false, nil
	case lua.LTNumber:
		n := float64(lua.LVAsNumber(v))
		if n != float64(int64(n)) {
			return 0, false, &ParseError{
				Message: "invalid config value",
				Detail:  fmt.Sprintf("%s: expected an integer, got %v", f.name(key), n),
			}
		}
		return n, true, nil
	default:
		return 0, false, f.typeError(key, "number", v)
	}
}

func (f fields) integer(key string, dst *int) error {
	n, ok, err := f.number(key)
	if ok {
		*dst = int(n)
	}
	return err
}

func (f fields) size(key string, dst *int64) error {
	n, ok, err := f.number(key)
	if ok {
		*dst = int64(n)
	}
	return err
}

// duration accepts seconds as a number or a Go duration string.
func (f fields) duration(key string, dst *time.Duration) error {
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTNumber:
		*dst = time.Duration(float64(lua.LVAsNumber(v)) * float64(time.Second))
		return nil
	case lua.LTString:
		d, err := time.ParseDuration(strings.TrimSpace(v.String()))
		if err != nil {
			return &ParseError{
				Message: "invalid config value",
				Detail:  fmt.Sprintf("%s: %v", f.name(key), err),
			}
		}
		*dst = d
		return nil
	default:
		return f.typeError(key, "duration", v)
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
