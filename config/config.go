// Package config reads the key=value configuration file format shared by
// the session's external collaborators (the CLI sender tool and any other
// embedder-supplied front end): "#" and blank lines are ignored, and the
// recognized keys are username, server, password, and connect_to.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Config is the parsed contents of a key=value configuration file.
type Config struct {
	Username  string
	Server    string
	Password  string
	ConnectTo string
}

// Load reads and parses the configuration file at path. Username and
// Server are required; their absence is reported as an error naming the
// missing key.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: open %s", path)
	}
	defer f.Close()

	var cfg Config
	seen := map[string]string{}

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return Config{}, errors.Errorf("config: %s:%d: expected key=value, got %q", path, line, text)
		}
		seen[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}

	cfg.Username = seen["username"]
	cfg.Server = seen["server"]
	cfg.Password = seen["password"]
	cfg.ConnectTo = seen["connect_to"]

	var missing []string
	if cfg.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Server == "" {
		missing = append(missing, "server")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: %s: missing required key(s): %s", path, strings.Join(missing, ", "))
	}
	return cfg, nil
}
