package harness

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// RunEnvironment snapshots where and on what a run executed. Captured once
// at the start of a run; all fields are best effort and empty when the
// underlying lookup fails (no git binary, detached state, restricted
// environment).
type RunEnvironment struct {
	CommitHash       string            `json:"commit_hash,omitempty"`
	Branch           string            `json:"branch,omitempty"`
	Dirty            bool              `json:"dirty"`
	GoVersion        string            `json:"go_version"`
	Platform         string            `json:"platform"`
	Hostname         string            `json:"hostname,omitempty"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	FrameworkVersion string            `json:"framework_version"`
	EnvVars          map[string]string `json:"env_vars,omitempty"`
}

// CaptureEnvironment inspects the current process environment and git state.
func CaptureEnvironment() RunEnvironment {
	env := RunEnvironment{
		GoVersion:        runtime.Version(),
		Platform:         runtime.GOOS + "/" + runtime.GOARCH,
		FrameworkVersion: Version,
	}
	if hostname, err := os.Hostname(); err == nil {
		env.Hostname = hostname
	}
	if wd, err := os.Getwd(); err == nil {
		env.WorkingDirectory = wd
	}
	env.CommitHash = gitOutput("rev-parse", "HEAD")
	env.Branch = gitOutput("rev-parse", "--abbrev-ref", "HEAD")
	if env.CommitHash != "" {
		env.Dirty = gitOutput("status", "--porcelain") != ""
	}
	env.EnvVars = captureEnvVars(os.Environ())
	return env
}

func gitOutput(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// captureEnvVars keeps only variables of this runtime's own namespace and
// masks values of secret-bearing keys down to their last four characters.
func captureEnvVars(environ []string) map[string]string {
	vars := map[string]string{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "MERIT_") {
			continue
		}
		if isSensitiveKey(key) {
			value = maskValue(value)
		}
		vars[key] = value
	}
	if len(vars) == 0 {
		return nil
	}
	return vars
}

func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "CREDENTIAL"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

func maskValue(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return "***" + value[len(value)-4:]
}
