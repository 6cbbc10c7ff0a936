package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyProvider   = "provider"
	KeyBranch     = "branch"
	KeyTag        = "tag"
	KeyCommit     = "commit"
	KeyBuildType  = "build_type"
	KeyComment    = "comment"
	KeyPackage    = "package"
	KeyVersion    = "version"
	KeyStage      = "stage"
	KeyPath       = "path"
	KeyCommand    = "command"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Provider(p string) slog.Attr      { return slog.String(KeyProvider, p) }
func Branch(b string) slog.Attr        { return slog.String(KeyBranch, b) }
func Tag(t string) slog.Attr           { return slog.String(KeyTag, t) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func BuildType(t string) slog.Attr     { return slog.String(KeyBuildType, t) }
func Comment(c string) slog.Attr       { return slog.String(KeyComment, c) }
func Package(p string) slog.Attr       { return slog.String(KeyPackage, p) }
func Version(v string) slog.Attr       { return slog.String(KeyVersion, v) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Command(c string) slog.Attr       { return slog.String(KeyCommand, c) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
