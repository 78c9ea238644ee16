package docker

// Container is a minimal container representation used by slipway to avoid
// leaking the Docker SDK types into the pipeline. Fields cover the data we
// need to find and replace the deployed container.
type Container struct {
	ID      string            `json:"Id"`
	Image   string            `json:"Image"`
	ImageID string            `json:"ImageID"`
	State   string            `json:"State"`
	Labels  map[string]string `json:"Labels"`
	Names   []string          `json:"Names"`
}

// RunOptions describes the container to start during cutover.
type RunOptions struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	Env           []string
	Labels        map[string]string
}
