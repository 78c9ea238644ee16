package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	imageapi "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slipway-sh/slipway/internal/logging"
)

const stopTimeoutSeconds = 10

// Client is the interface used by the pipeline for Docker operations.
type Client interface {
	// Login verifies the registry credentials against the daemon.
	Login(ctx context.Context, user, pass string) error
	// BuildImage builds an image from the given context directory and
	// Dockerfile path (relative to the context) and returns the image ID.
	BuildImage(ctx context.Context, contextDir, dockerfile string, tags []string) (string, error)
	// PushImage uploads the tagged image to the registry.
	PushImage(ctx context.Context, ref string) error
	// TagImage applies an additional tag to an existing local image.
	TagImage(ctx context.Context, source, target string) error
	// FindContainerByName returns the container with the given name, or nil
	// when no such container exists (running or stopped).
	FindContainerByName(ctx context.Context, name string) (*Container, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	// RunContainer creates and starts the named container with the host
	// port bound to the container port. Returns the new container ID.
	RunContainer(ctx context.Context, opts RunOptions) (string, error)
	// InspectRunning reports whether the container is currently running.
	InspectRunning(ctx context.Context, id string) (bool, error)
}

// dockerAPI is the narrow slice of the official SDK the client depends on.
// Tests implement this interface with fakes.
type dockerAPI interface {
	RegistryLogin(ctx context.Context, auth registrytypes.AuthConfig) (registrytypes.AuthenticateOKBody, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImagePush(ctx context.Context, ref string, options imageapi.PushOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
	ImageInspectWithRaw(ctx context.Context, image string) (types.ImageInspect, []byte, error)
	ContainerList(ctx context.Context, options containertypes.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *containertypes.Config, hostConfig *containertypes.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (containertypes.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options containertypes.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options containertypes.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options containertypes.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// sdkClient is the production implementation using the official Docker SDK.
type sdkClient struct {
	cli          dockerAPI
	registryAuth string
}

// NewClient returns an SDK-backed Docker client. When user/pass are set the
// credential blob is attached to push operations.
func NewClient(user, pass string) (Client, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	s := &sdkClient{cli: c}
	if user != "" || pass != "" {
		s.registryAuth = encodeAuth(user, pass)
	}
	return s, nil
}

// encodeAuth builds the base64 JSON credential blob the engine API expects
// in X-Registry-Auth headers.
func encodeAuth(user, pass string) string {
	auth := map[string]string{"username": user, "password": pass}
	b, _ := json.Marshal(auth)
	return base64.StdEncoding.EncodeToString(b)
}

func (s *sdkClient) Login(ctx context.Context, user, pass string) error {
	if user == "" && pass == "" {
		logging.Get().Debug().Msg("no registry credentials configured; skipping login")
		return nil
	}
	resp, err := s.cli.RegistryLogin(ctx, registrytypes.AuthConfig{Username: user, Password: pass})
	if err != nil {
		logging.Get().Error().Err(err).Str("user", user).Msg("registry login failed")
		return fmt.Errorf("registry login: %w", err)
	}
	logging.Get().Info().Str("user", user).Str("status", resp.Status).Msg("registry login succeeded")
	return nil
}

func (s *sdkClient) BuildImage(ctx context.Context, contextDir, dockerfile string, tags []string) (string, error) {
	logging.Get().Info().Str("context", contextDir).Strs("tags", tags).Msg("building image")
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("tar build context: %w", err)
	}
	defer buildCtx.Close()

	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	resp, err := s.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       tags,
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	// Build errors are reported inside the progress stream, not as a
	// transport error; decoding the stream surfaces them.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil); err != nil {
		logging.Get().Error().Err(err).Strs("tags", tags).Msg("image build failed")
		return "", fmt.Errorf("image build: %w", err)
	}

	if len(tags) == 0 {
		return "", nil
	}
	inspected, _, err := s.cli.ImageInspectWithRaw(ctx, tags[0])
	if err != nil {
		return "", fmt.Errorf("inspect built image %s: %w", tags[0], err)
	}
	logging.Get().Info().Str("image", tags[0]).Str("id", inspected.ID).Msg("built image")
	return inspected.ID, nil
}

func (s *sdkClient) PushImage(ctx context.Context, ref string) error {
	logging.Get().Info().Str("image", ref).Msg("pushing image")
	opts := imageapi.PushOptions{RegistryAuth: s.registryAuth}
	if opts.RegistryAuth == "" {
		// The engine API requires a non-empty auth header even for
		// anonymous pushes.
		opts.RegistryAuth = base64.StdEncoding.EncodeToString([]byte("{}"))
	}
	rc, err := s.cli.ImagePush(ctx, ref, opts)
	if err != nil {
		logging.Get().Error().Err(err).Str("image", ref).Msg("image push failed")
		return fmt.Errorf("image push %s: %w", ref, err)
	}
	defer rc.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(rc, io.Discard, 0, false, nil); err != nil {
		logging.Get().Error().Err(err).Str("image", ref).Msg("image push failed")
		return fmt.Errorf("image push %s: %w", ref, err)
	}
	logging.Get().Info().Str("image", ref).Msg("pushed image")
	return nil
}

func (s *sdkClient) TagImage(ctx context.Context, source, target string) error {
	if err := s.cli.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("tag image %s as %s: %w", source, target, err)
	}
	return nil
}

func (s *sdkClient) FindContainerByName(ctx context.Context, name string) (*Container, error) {
	list, err := s.cli.ContainerList(ctx, containertypes.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	for _, c := range list {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				found := Container{
					ID:      c.ID,
					Image:   c.Image,
					ImageID: c.ImageID,
					State:   c.State,
					Labels:  c.Labels,
					Names:   c.Names,
				}
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (s *sdkClient) StopContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	if err := s.cli.ContainerStop(ctx, id, containertypes.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

func (s *sdkClient) RemoveContainer(ctx context.Context, id string) error {
	if err := s.cli.ContainerRemove(ctx, id, containertypes.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

func (s *sdkClient) RunContainer(ctx context.Context, opts RunOptions) (string, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(opts.ContainerPort))
	if err != nil {
		return "", fmt.Errorf("invalid container port %d: %w", opts.ContainerPort, err)
	}
	cfg := &containertypes.Config{
		Image:        opts.Image,
		Env:          opts.Env,
		Labels:       opts.Labels,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}
	hostCfg := &containertypes.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(opts.HostPort)}},
		},
		// survive host reboots; the slot holds exactly one container
		RestartPolicy: containertypes.RestartPolicy{Name: containertypes.RestartPolicyAlways},
	}
	resp, err := s.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", opts.Name, err)
	}
	if err := s.cli.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", opts.Name, err)
	}
	logging.Get().Info().Str("container", opts.Name).Str("id", resp.ID).
		Str("binding", fmt.Sprintf("%d->%d", opts.HostPort, opts.ContainerPort)).
		Msg("started container")
	return resp.ID, nil
}

func (s *sdkClient) InspectRunning(ctx context.Context, id string) (bool, error) {
	insp, err := s.cli.ContainerInspect(ctx, id)
	if err != nil {
		return false, fmt.Errorf("inspect container %s: %w", id, err)
	}
	return insp.State != nil && insp.State.Running, nil
}

// WaitUntilGone polls until the container no longer exists or the context is
// cancelled. Used by tests and by callers that need remove to settle.
func WaitUntilGone(ctx context.Context, cli Client, name string, interval time.Duration) error {
	for {
		c, err := cli.FindContainerByName(ctx, name)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
