package buildinfo

// Version 在 Release 构建时通过 -ldflags 注入，例如：
// -X github.com/yuqie6/drivestats/internal/pkg/buildinfo.Version=v0.1.0
var Version = "dev"

// Commit 在 Release 构建时可选注入 git commit，例如：
// -X github.com/yuqie6/drivestats/internal/pkg/buildinfo.Commit=abcdef1
var Commit = "unknown"

// String 返回 "version (commit)"，commit 未注入时只返回 version
func String() string {
	if Commit == "" || Commit == "unknown" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
