package lsf

import (
	"sort"
	"strings"
	"sync"
)

// Option names accepted by SetOption and GetOption.
const (
	OptionQueue             = "queue"
	OptionResourceRequest   = "resourceRequest"
	OptionLoginShell        = "loginShell"
	OptionRemoteServer      = "remoteServer"
	OptionRemoteShellBinary = "remoteShellBinary"
	OptionSubmitCmd         = "submitCmd"
	OptionStatusCmd         = "statusCmd"
	OptionKillCmd           = "killCmd"
)

// Defaults for the command options.
const (
	DefaultRemoteShell = "/usr/bin/ssh"
	DefaultSubmitCmd   = "bsub"
	DefaultStatusCmd   = "bjobs"
	DefaultKillCmd     = "bkill"
)

// Special remoteServer values.
const (
	// RemoteServerLocal runs the batch commands on this host without a remote shell.
	RemoteServerLocal = "local"
	remoteServerNull  = "null"
)

var optionDefaults = map[string]string{
	OptionQueue:             "",
	OptionResourceRequest:   "",
	OptionLoginShell:        "",
	OptionRemoteServer:      "",
	OptionRemoteShellBinary: DefaultRemoteShell,
	OptionSubmitCmd:         DefaultSubmitCmd,
	OptionStatusCmd:         DefaultStatusCmd,
	OptionKillCmd:           DefaultKillCmd,
}

// OptionNames returns the accepted option names in sorted order.
func OptionNames() []string {
	names := make([]string, 0, len(optionDefaults))
	for name := range optionDefaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mode is how batch commands reach the batch system.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Options is the driver's option store. It is safe for concurrent use.
type Options struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewOptions returns a store holding the defaults.
func NewOptions() *Options {
	values := make(map[string]string, len(optionDefaults))
	for k, v := range optionDefaults {
		values[k] = v
	}
	return &Options{values: values}
}

// Set stores value under name as given. Unknown names are rejected and leave
// the store unchanged.
func (o *Options) Set(name, value string) error {
	if _, ok := optionDefaults[name]; !ok {
		return configError("set option", "unknown option %q", name)
	}
	o.mu.Lock()
	o.values[name] = value
	o.mu.Unlock()
	return nil
}

// Get returns the value stored under name.
func (o *Options) Get(name string) (string, error) {
	if _, ok := optionDefaults[name]; !ok {
		return "", configError("get option", "unknown option %q", name)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.values[name], nil
}

// Snapshot returns a copy of the current values for use by one operation.
func (o *Options) Snapshot() OptionsSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := make(OptionsSnapshot, len(o.values))
	for k, v := range o.values {
		snap[k] = v
	}
	return snap
}

// OptionsSnapshot is an immutable copy of the option values.
type OptionsSnapshot map[string]string

func (s OptionsSnapshot) get(name string) string {
	return strings.TrimSpace(s[name])
}

// Mode derives the transport from remoteServer. The value "null" in any case
// selects the direct API like an empty value.
func (s OptionsSnapshot) Mode() Mode {
	server := s.get(OptionRemoteServer)
	switch {
	case server == "", strings.EqualFold(server, remoteServerNull):
		return ModeDirect
	case strings.EqualFold(server, RemoteServerLocal):
		return ModeLocal
	default:
		return ModeRemote
	}
}

func (s OptionsSnapshot) orDefault(name string) string {
	if v := s.get(name); v != "" {
		return v
	}
	return optionDefaults[name]
}
