package cliutil

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

type BuildInfo struct {
	GoOS           string `json:"go_os"`
	GoVersion      string `json:"go_version"`
	GoArch         string `json:"go_arch"`
	BuildTime      string `json:"build_time"`
	BusfuzzVersion string `json:"busfuzz_version"`
}

func GetBuildInfo(buildTime, version string) *BuildInfo {
	return &BuildInfo{
		GoOS:           runtime.GOOS,
		GoVersion:      runtime.Version(),
		GoArch:         runtime.GOARCH,
		BuildTime:      buildTime,
		BusfuzzVersion: version,
	}
}

func (bi *BuildInfo) Log(log *zerolog.Logger) {
	log.Info().Msgf("Version %s", bi.BusfuzzVersion)
	log.Debug().Msgf("Built %s, GOOS: %s, GOVersion: %s, GoArch: %s", bi.BuildTime, bi.GoOS, bi.GoVersion, bi.GoArch)
}

func (bi *BuildInfo) OSArch() string {
	return fmt.Sprintf("%s_%s", bi.GoOS, bi.GoArch)
}

func (bi *BuildInfo) Version() string {
	return bi.BusfuzzVersion
}

// String is the text printed by the version command.
func (bi *BuildInfo) String() string {
	return fmt.Sprintf("busfuzz %s (built %s, %s, %s)", bi.BusfuzzVersion, bi.BuildTime, bi.GoVersion, bi.OSArch())
}
