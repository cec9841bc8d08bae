package ollama

import (
	"testing"
)

func TestDockerConfig_Defaults(t *testing.T) {
	if DefaultContainerName != "vppe-ollama" {
		t.Errorf("unexpected default container name: %s", DefaultContainerName)
	}
	if DefaultImage != "ollama/ollama:latest" {
		t.Errorf("unexpected default image: %s", DefaultImage)
	}
	if DefaultPort != "11434" {
		t.Errorf("unexpected default port: %s", DefaultPort)
	}
	if ContainerPort != "11434/tcp" {
		t.Errorf("unexpected container port: %s", ContainerPort)
	}
}

func TestNewDockerManager_Config(t *testing.T) {
	tests := []struct {
		name         string
		cfg          DockerConfig
		wantContName string
		wantImage    string
		wantPort     string
	}{
		{
			name:         "defaults fill empty fields",
			cfg:          DockerConfig{},
			wantContName: DefaultContainerName,
			wantImage:    DefaultImage,
			wantPort:     DefaultPort,
		},
		{
			name: "explicit values take precedence",
			cfg: DockerConfig{
				ContainerName: "my-ollama",
				Image:         "ollama/ollama:0.6.0",
				HostPort:      "21434",
			},
			wantContName: "my-ollama",
			wantImage:    "ollama/ollama:0.6.0",
			wantPort:     "21434",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := NewDockerManager(tt.cfg)
			if err != nil {
				t.Fatalf("NewDockerManager() error = %v", err)
			}
			defer mgr.Close()

			if mgr.containerName != tt.wantContName {
				t.Errorf("containerName = %q, want %q", mgr.containerName, tt.wantContName)
			}
			if mgr.imageName != tt.wantImage {
				t.Errorf("imageName = %q, want %q", mgr.imageName, tt.wantImage)
			}
			if mgr.hostPort != tt.wantPort {
				t.Errorf("hostPort = %q, want %q", mgr.hostPort, tt.wantPort)
			}
			if mgr.labels[Label] != "true" {
				t.Errorf("labels missing %s marker: %v", Label, mgr.labels)
			}
		})
	}
}

func TestNewDockerManager_ExtraLabels(t *testing.T) {
	mgr, err := NewDockerManager(DockerConfig{
		Labels: map[string]string{"test-run": "abc123"},
	})
	if err != nil {
		t.Fatalf("NewDockerManager() error = %v", err)
	}
	defer mgr.Close()

	if mgr.labels["test-run"] != "abc123" {
		t.Errorf("extra label not carried: %v", mgr.labels)
	}
	if mgr.labels[Label] != "true" {
		t.Errorf("standard label missing: %v", mgr.labels)
	}
}

func TestURL(t *testing.T) {
	mgr, err := NewDockerManager(DockerConfig{HostPort: "21434"})
	if err != nil {
		t.Fatalf("NewDockerManager() error = %v", err)
	}
	defer mgr.Close()

	if got := mgr.URL(); got != "http://localhost:21434" {
		t.Errorf("URL() = %q", got)
	}
}
