package integration

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"
)

// This integration test is skipped by default. To run it locally, set
// RUN_DOCKER_INTEGRATION=1 in your environment. It requires Docker to be
// available on the host where the test runs and builds the sample app
// image from deploy/Dockerfile.
func TestHelloAppImageServesGreeting(t *testing.T) {
	if os.Getenv("RUN_DOCKER_INTEGRATION") != "1" {
		t.Skip("skipping integration test; set RUN_DOCKER_INTEGRATION=1 to enable")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	build := exec.CommandContext(ctx, "docker", "build", "-f", "../deploy/Dockerfile", "-t", "slipway-hello:smoke", "..")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("docker build failed: %v", err)
	}

	run := exec.CommandContext(ctx, "docker", "run", "-d", "--rm", "--name", "slipway-hello-smoke", "-p", "18080:5000", "slipway-hello:smoke")
	out, err := run.CombinedOutput()
	if err != nil {
		t.Fatalf("docker run failed: %v - output: %s", err, string(out))
	}
	defer exec.Command("docker", "stop", "slipway-hello-smoke").Run()

	// give the container a moment to come up
	deadline := time.Now().Add(10 * time.Second)
	var body []byte
	for {
		resp, err := http.Get("http://127.0.0.1:18080/")
		if err == nil {
			body, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("app did not become ready: last err=%v body=%q", err, string(body))
		}
		time.Sleep(250 * time.Millisecond)
	}

	if string(body) != "Hello from Flask running in Docker!" {
		t.Fatalf("unexpected response body: %q", string(body))
	}
}
