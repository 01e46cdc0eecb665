package domain

// Container represents a container in the system (Docker, K8s, etc.)
type Container struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	State     string `json:"state"` // running, exited, etc.
	Port      string `json:"port,omitempty"`
	IPAddress string `json:"-"`
}

// StateRunning is the only state a terminal session may be opened against.
const StateRunning = "running"

// IsRunning reports whether commands can be executed inside the container.
func (c Container) IsRunning() bool {
	return c.State == StateRunning
}

// ExecResult is the combined output of a command run inside a container.
type ExecResult struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// ContainerSpec describes a container to be launched.
type ContainerSpec struct {
	Image   string
	Name    string
	Command []string
	Labels  map[string]string
}

// ContainerLogs is the tail of a container's combined output.
type ContainerLogs struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logs string `json:"logs"`
}
