package internal

import (
	"log/slog"
	"runtime/debug"
	"time"
)

// Build describes the version control state the binary was built from.
type Build struct {
	Revision      string
	RevisionTime  time.Time
	LocalModified string
	GoVersion     string
}

// ReadBuild reads the build information embedded by the go tool.
// Unknown fields are reported as "unknown".
func ReadBuild() Build {
	b := Build{
		Revision:      "unknown",
		LocalModified: "unknown",
		GoVersion:     "unknown",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}

	b.GoVersion = info.GoVersion

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err == nil {
				b.RevisionTime = t
			}
		case "vcs.modified":
			b.LocalModified = setting.Value
		}
	}

	return b
}

// LogValue implements the slog.LogValuer interface.
func (b Build) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("revision", b.Revision),
		slog.Time("revision_time", b.RevisionTime),
		slog.String("local_modified", b.LocalModified),
		slog.String("go_version", b.GoVersion),
	)
}
