package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Release holds the publishing credentials of the release pipeline.
// Unset variables are left empty.
type Release struct {
	// SonatypeUsername authenticates against the Maven Central portal.
	SonatypeUsername string `env:"SONATYPE_USERNAME"`
	// SonatypePassword authenticates against the Maven Central portal.
	SonatypePassword string `env:"SONATYPE_PASSWORD"`
	// ReleaseToken is the token used to draft GitHub releases.
	ReleaseToken string `env:"RELEASE_GRADLE_PLUGIN_TOKEN"`
}

// LoadRelease reads the release credentials from lookuper.
func LoadRelease(ctx context.Context, lookuper envconfig.Lookuper) (*Release, error) {
	var release Release
	if err := envconfig.ProcessWith(ctx, &release, lookuper); err != nil {
		return nil, fmt.Errorf("process release environment: %w", err)
	}

	return &release, nil
}

// Presence reports for every variable whether it is set, without exposing values.
func (r *Release) Presence() map[string]bool {
	return map[string]bool{
		"SONATYPE_USERNAME":           r.SonatypeUsername != "",
		"SONATYPE_PASSWORD":           r.SonatypePassword != "",
		"RELEASE_GRADLE_PLUGIN_TOKEN": r.ReleaseToken != "",
	}
}
