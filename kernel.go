package perfspan

import (
	"regexp"
	"sync"

	"github.com/blang/semver"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// PERF_FLAG_FD_CLOEXEC appeared in Linux 3.14.
var cloexecVersion = semver.MustParse("3.14.0")

var kernel struct {
	once    sync.Once
	version semver.Version
	err     error
}

var releasePrefix = regexp.MustCompile(`^\d+\.\d+(\.\d+)?`)

// parseRelease parses a kernel release string such as "5.15.0-91-generic".
// Distribution suffixes are dropped so that they do not sort as semver
// prereleases.
func parseRelease(release string) (semver.Version, error) {
	return semver.ParseTolerant(releasePrefix.FindString(release))
}

// KernelVersion returns the version of the running kernel.
func KernelVersion() (semver.Version, error) {
	kernel.once.Do(func() {
		var uts unix.Utsname
		if err := unix.Uname(&uts); err != nil {
			kernel.err = err
			return
		}
		kernel.version, kernel.err = parseRelease(unix.ByteSliceToString(uts.Release[:]))
	})
	return kernel.version, kernel.err
}

func supportsCloexec() bool {
	v, err := KernelVersion()
	if err != nil {
		logger.Debug("unknown kernel version", zap.Error(err))
		return false
	}
	return v.GTE(cloexecVersion)
}
