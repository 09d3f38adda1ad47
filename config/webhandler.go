package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the runtime part of the configuration at
// /api/config. GET returns it as JSON. POST merges a new version into the
// file on disk and answers with what was stored; Watch picks the change up.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := slog.With("method", r.Method, "path", r.URL.Path)
		var (
			rc     RuntimeConfig
			status int
			err    error
		)
		switch r.Method {
		case http.MethodGet:
			rc, status, err = loadRuntime(cfile)
		case http.MethodPost:
			rc, status, err = storeRuntime(r, cfile)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			log.Warn("Config API request failed", "status", status, "error", err)
			http.Error(w, err.Error(), status)
			return
		}
		log.Info("Config API request served")
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rc); err != nil {
			log.Error("Failed to encode runtime config", "error", err)
		}
	}
}

// Runtime returns the part of c that may change while the node runs.
func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{Node: c.Node, Tasks: c.Tasks, Logging: c.Logging}
}

func (c *Config) applyRuntime(rc RuntimeConfig) {
	c.Node, c.Tasks, c.Logging = rc.Node, rc.Tasks, rc.Logging
}

func loadRuntime(cfile string) (RuntimeConfig, int, error) {
	conf, err := ReadConfig(cfile)
	if err != nil {
		return RuntimeConfig{}, http.StatusInternalServerError, fmt.Errorf("reading configuration: %w", err)
	}
	return conf.Runtime(), http.StatusOK, nil
}

func storeRuntime(r *http.Request, cfile string) (RuntimeConfig, int, error) {
	defer r.Body.Close()

	var rc RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		return rc, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
	}
	conf, err := ReadConfig(cfile)
	if err != nil {
		return rc, http.StatusInternalServerError, fmt.Errorf("reading configuration: %w", err)
	}
	conf.applyRuntime(rc)
	if err := conf.Validate(); err != nil {
		return rc, http.StatusBadRequest, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := writeAtomic(cfile, conf); err != nil {
		return rc, http.StatusInternalServerError, err
	}
	return conf.Runtime(), http.StatusOK, nil
}

// writeAtomic replaces cfile in one rename so the watcher never reads a
// half written file.
func writeAtomic(cfile string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(cfile), ".wifinode-*.yml")
	if err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}
	_, werr := tmp.Write(data)
	if err := errors.Join(werr, tmp.Close()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving configuration: %w", err)
	}
	if err := os.Rename(tmp.Name(), cfile); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("saving configuration: %w", err)
	}
	return nil
}
