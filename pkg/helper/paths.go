package helper

import (
	"os"
	"path/filepath"
)

const (
	// ConfigDir holds configuration files not found below the working
	// directory.
	ConfigDir = "/etc/webconsole"
	RunDir    = "/var/run"

	defaultConfigFile = "webconsole.yaml"
	defaultPIDFile    = "webconsole.pid"
)

// GetCfgPath locates a configuration file. Absolute paths are kept,
// relative ones are looked up in ./ and ./configs before ConfigDir.
func GetCfgPath(filename string) string {
	if filename == "" {
		filename = defaultConfigFile
	}
	if p, ok := lookup(filename, isFile, ".", "configs"); ok {
		return p
	}
	return filepath.Join(ConfigDir, filename)
}

// GetPIDPath locates the PID file. A relative name resolves against the
// working directory when its parent directory exists there, else RunDir.
func GetPIDPath(filename string) string {
	if filename == "" {
		return filepath.Join(RunDir, defaultPIDFile)
	}
	if p, ok := lookup(filename, hasParent, "."); ok {
		return p
	}
	return filepath.Join(RunDir, filepath.Base(filename))
}

func lookup(filename string, accept func(string) bool, dirs ...string) (string, bool) {
	if filepath.IsAbs(filename) {
		return filename, true
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for _, dir := range dirs {
		p := filepath.Join(wd, dir, filename)
		if accept(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func hasParent(p string) bool {
	info, err := os.Stat(filepath.Dir(p))
	return err == nil && info.IsDir()
}
