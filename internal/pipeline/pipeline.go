// Package pipeline implements the build-and-deploy sequence: checkout,
// authenticate, build, publish, cutover.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/docker"
	"github.com/slipway-sh/slipway/internal/logging"
	"github.com/slipway-sh/slipway/internal/metrics"
	"github.com/slipway-sh/slipway/internal/notify"
	"github.com/slipway-sh/slipway/internal/registry"
	"github.com/slipway-sh/slipway/internal/state"
)

// Step names as recorded in metrics and deploy history.
const (
	StepCheckout     = "checkout"
	StepAuthenticate = "authenticate"
	StepBuild        = "build"
	StepPublish      = "publish"
	StepCutover      = "cutover"
	StepVerify       = "verify"
)

// registryOps is the slice of the registry resolver the pipeline uses.
// Tests implement this interface with fakes.
type registryOps interface {
	NextVersion(ctx context.Context, repository string) (string, error)
	Digest(ctx context.Context, image string) (string, error)
}

// Result summarizes one pipeline run.
type Result struct {
	Revision   string
	ImageRef   string
	ImageID    string
	VersionRef string
	Digest     string
	Outcome    string
	FailedStep string
	Duration   time.Duration
}

// Pipeline runs deployments against a single container slot on this host.
type Pipeline struct {
	cfg      *config.Config
	cli      docker.Client
	registry registryOps
	notifier *notify.MultiNotifier
	Now      func() time.Time // injectable clock for testing

	// test hooks
	checkoutFunc func(ctx context.Context, repoURL, branch, revision string) (*checkoutResult, error)
	probeFunc    func(ctx context.Context, url string, timeout, interval time.Duration) error
}

// New creates a pipeline with an injected docker client.
func New(cfg *config.Config, cli docker.Client) *Pipeline {
	p := &Pipeline{
		cfg:          cfg,
		cli:          cli,
		registry:     registry.NewResolver(cfg.RegistryUser, cfg.RegistryPass),
		Now:          time.Now,
		checkoutFunc: checkout,
		probeFunc:    probeHTTP,
	}
	p.initNotifiers()

	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}
	return p
}

// initNotifiers initializes all configured notifiers for the pipeline.
func (p *Pipeline) initNotifiers() {
	p.notifier = notify.NewMultiNotifier()
	cfg := p.cfg
	entries := []struct {
		enabled bool
		add     func()
	}{
		{cfg.SlackWebhook != "", func() { p.notifier.Add(&notify.Slack{WebhookURL: cfg.SlackWebhook}) }},
		{cfg.DiscordWebhook != "", func() { p.notifier.Add(&notify.Discord{WebhookURL: cfg.DiscordWebhook}) }},
		{cfg.GenericWebhookURL != "", func() { p.notifier.Add(&notify.Generic{URL: cfg.GenericWebhookURL}) }},
		{cfg.EmailHost != "" && len(cfg.EmailTo) > 0, func() {
			p.notifier.Add(&notify.Email{Host: cfg.EmailHost, Port: cfg.EmailPort, User: cfg.EmailUser, Pass: cfg.EmailPass, To: cfg.EmailTo})
		}},
	}
	for _, e := range entries {
		if e.enabled {
			e.add()
		}
	}
}

// Notifier exposes the pipeline's notifier so callers can drain it at
// shutdown.
func (p *Pipeline) Notifier() *notify.MultiNotifier { return p.notifier }

// Run executes one full deployment for the given revision. An empty
// revision deploys the configured branch head. The returned Result is
// non-nil even on failure.
func (p *Pipeline) Run(ctx context.Context, revision string) (*Result, error) {
	start := p.Now()
	res := &Result{Revision: revision, ImageRef: p.cfg.ImageRef()}
	logging.Get().Info().Str("revision", revision).Str("image", res.ImageRef).Msg("starting deployment")

	err := p.run(ctx, revision, res)
	res.Duration = p.Now().Sub(start)
	metrics.ObserveDeployDuration(res.Duration.Seconds())

	switch {
	case err != nil:
		res.Outcome = state.OutcomeFailed
		metrics.IncDeployFailed()
		metrics.IncStepFailure(res.FailedStep)
		logging.Get().Error().Err(err).Str("step", res.FailedStep).Str("revision", res.Revision).Msg("deployment failed")
		p.notify(ctx, "failure", fmt.Sprintf("Deploy failed: %s", p.cfg.ContainerName),
			fmt.Sprintf("step=%s revision=%s err=%v", res.FailedStep, res.Revision, err))
	case p.cfg.DryRun:
		res.Outcome = state.OutcomeDryRun
		logging.Get().Info().Str("revision", res.Revision).Msg("dry-run complete (skipped publish and cutover)")
	default:
		res.Outcome = state.OutcomeSucceeded
		metrics.IncDeploy()
		metrics.SetLastDeploy(p.Now())
		logging.Get().Info().Str("revision", res.Revision).Float64("duration_seconds", res.Duration.Seconds()).Msg("deployment succeeded")
		p.notify(ctx, "success", fmt.Sprintf("Deployed: %s", p.cfg.ContainerName),
			fmt.Sprintf("image=%s revision=%s", res.ImageRef, res.Revision))
	}

	p.record(res, err, start)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, revision string, res *Result) error {
	// 1. Checkout
	src, err := p.checkoutFunc(ctx, p.cfg.RepoURL, p.cfg.Branch, revision)
	if err != nil {
		res.FailedStep = StepCheckout
		return err
	}
	defer src.cleanup()
	res.Revision = src.Revision

	// 2. Authenticate
	if err := p.cli.Login(ctx, p.cfg.RegistryUser, p.cfg.RegistryPass); err != nil {
		res.FailedStep = StepAuthenticate
		return err
	}

	// 3. Build
	imageID, err := p.cli.BuildImage(ctx, src.Dir, p.cfg.Dockerfile, []string{res.ImageRef})
	if err != nil {
		res.FailedStep = StepBuild
		return err
	}
	res.ImageID = imageID

	if p.cfg.DryRun {
		return nil
	}

	// 4. Publish
	if err := p.publish(ctx, res); err != nil {
		res.FailedStep = StepPublish
		return err
	}

	// 5. Cutover
	if err := p.cutover(ctx); err != nil {
		res.FailedStep = StepCutover
		return err
	}

	// Post-cutover verification. A failed probe marks the deployment
	// failed but the new container is left in place for inspection.
	if p.cfg.VerifyTimeout > 0 {
		url := fmt.Sprintf("http://127.0.0.1:%d%s", p.cfg.HostPort, normalizePath(p.cfg.VerifyPath))
		if err := p.probeFunc(ctx, url, p.cfg.VerifyTimeout.Std(), p.cfg.VerifyInterval.Std()); err != nil {
			res.FailedStep = StepVerify
			return err
		}
	}
	return nil
}

// publish pushes the primary reference and, when enabled, an additional
// semver tag computed from the registry's existing tags.
func (p *Pipeline) publish(ctx context.Context, res *Result) error {
	if p.cfg.VersionTags {
		version, err := p.registry.NextVersion(ctx, p.cfg.Repository())
		if err != nil {
			// best-effort: a registry listing failure should not block the deploy
			logging.Get().Warn().Err(err).Msg("failed to compute next version tag; publishing primary tag only")
		} else {
			versionRef := fmt.Sprintf("%s:%s", p.cfg.Repository(), version)
			if err := p.cli.TagImage(ctx, res.ImageRef, versionRef); err != nil {
				return err
			}
			res.VersionRef = versionRef
		}
	}

	refs := []string{res.ImageRef}
	if res.VersionRef != "" {
		refs = append(refs, res.VersionRef)
	}
	for _, ref := range refs {
		if err := p.cli.PushImage(ctx, ref); err != nil {
			metrics.IncPushFailure()
			return err
		}
		metrics.IncPushSuccess()
	}

	if digest, err := p.registry.Digest(ctx, res.ImageRef); err != nil {
		logging.Get().Warn().Err(err).Str("image", res.ImageRef).Msg("failed to resolve pushed digest")
	} else {
		res.Digest = digest
		logging.Get().Info().Str("image", res.ImageRef).Str("digest", digest).Msg("published image")
	}
	return nil
}

// cutover replaces the named container slot with the freshly built image.
// Stop and remove errors are swallowed so a missing or already-stopped
// container does not block the deploy; a failed start is fatal.
func (p *Pipeline) cutover(ctx context.Context) error {
	name := p.cfg.ContainerName
	existing, err := p.cli.FindContainerByName(ctx, name)
	if err != nil {
		return err
	}

	downtimeStart := p.Now()
	if existing != nil {
		logging.Get().Info().Str("container", name).Str("id", existing.ID).Msg("stopping previous container")
		if err := p.cli.StopContainer(ctx, existing.ID); err != nil {
			logging.Get().Warn().Err(err).Str("container", name).Msg("stop failed; continuing")
		}
		if err := p.cli.RemoveContainer(ctx, existing.ID); err != nil {
			logging.Get().Warn().Err(err).Str("container", name).Msg("remove failed; continuing")
		}
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := docker.WaitUntilGone(waitCtx, p.cli, name, 100*time.Millisecond); err != nil {
			logging.Get().Warn().Err(err).Str("container", name).Msg("old container still present; create may conflict")
		}
	}

	id, err := p.cli.RunContainer(ctx, docker.RunOptions{
		Name:          name,
		Image:         p.cfg.ImageRef(),
		HostPort:      p.cfg.HostPort,
		ContainerPort: p.cfg.ContainerPort,
		Labels:        map[string]string{"slipway.managed": "true"},
	})
	if err != nil {
		return err
	}
	metrics.ObserveCutoverDowntime(p.Now().Sub(downtimeStart).Seconds())

	running, err := p.cli.InspectRunning(ctx, id)
	if err != nil {
		logging.Get().Warn().Err(err).Str("container", name).Msg("failed to inspect new container")
		return nil
	}
	if !running {
		return fmt.Errorf("container %s exited immediately after start", name)
	}
	return nil
}

func (p *Pipeline) record(res *Result, runErr error, start time.Time) {
	rec := state.DeployRecord{
		Revision:   res.Revision,
		ImageRef:   res.ImageRef,
		Digest:     res.Digest,
		Outcome:    res.Outcome,
		FailedStep: res.FailedStep,
		StartedAt:  start.UTC(),
		FinishedAt: p.Now().UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := state.Append(rec); err != nil {
		logging.Get().Warn().Err(err).Msg("failed to persist deploy record")
	}
}

// notify sends a notification if the configured level allows it.
// level: "success" | "failure"
func (p *Pipeline) notify(ctx context.Context, level, title, message string) {
	configLevel := strings.ToLower(p.cfg.NotificationLevel)
	if configLevel == "none" {
		return
	}
	if configLevel == "failure" && level != "failure" {
		return
	}
	p.notifier.Send(ctx, title, message)
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
