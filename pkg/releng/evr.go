package releng

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EVR is an RPM-style epoch:version-release identifier, e.g.
// "1.2.3-0.1.alpha" or "2:1.4.0-1". The release component carries the
// pre-release stage: alpha, beta, and rc sort below the GA release, and
// nightly builds sort below everything.
type EVR struct {
	Epoch  int
	VMajor int
	VMinor int
	VPatch int

	RMajor int
	RMinor int

	// RStage is "alpha", "beta", "rc", a nightly string
	// ("n<timestamp>git<hash>"), or empty for a GA release.
	RStage string
}

var (
	evrVersionRE = regexp.MustCompile(`^(?:(\d+):)?(\d+)\.(\d+)(?:\.(\d+))?$`)
	evrReleaseRE = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(.+[^.]))?$`)
)

var pythonStageMap = map[string]string{
	"alpha": "a",
	"beta":  "b",
	"rc":    "rc",
}

// NewEVR parses separate version and release strings.
func NewEVR(version, release string) (*EVR, error) {
	e := &EVR{}

	m := evrVersionRE.FindStringSubmatch(version)
	if m == nil {
		return nil, fmt.Errorf("invalid version %q: expecting [epoch:]x.y[.z]", version)
	}
	if m[1] != "" {
		e.Epoch, _ = strconv.Atoi(m[1])
	}
	e.VMajor, _ = strconv.Atoi(m[2])
	e.VMinor, _ = strconv.Atoi(m[3])
	if m[4] != "" {
		e.VPatch, _ = strconv.Atoi(m[4])
	}

	m = evrReleaseRE.FindStringSubmatch(release)
	if m == nil {
		return nil, fmt.Errorf("invalid release %q: expecting major[.minor][.stage]", release)
	}
	e.RMajor, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		e.RMinor, _ = strconv.Atoi(m[2])
	}
	e.RStage = m[3]

	if _, pre := pythonStageMap[e.RStage]; pre && e.RMajor != 0 {
		return nil, fmt.Errorf("release major must be 0 for pre-release stage %s", e.RStage)
	}
	if e.RStage == "" && e.RMajor < 1 {
		return nil, fmt.Errorf("release major must be at least 1 for a GA release")
	}

	return e, nil
}

// ParseEVR parses a combined "version-release" string.
func ParseEVR(s string) (*EVR, error) {
	idx := strings.LastIndex(s, "-")
	if idx < 0 {
		return nil, fmt.Errorf("invalid evr %q: expecting version-release", s)
	}
	return NewEVR(s[:idx], s[idx+1:])
}

// NewNightlyEVR builds the EVR for a nightly build of the given version.
// The release is "0.0.n<YYYYmmddHHMM>git<short-hash>", which sorts below
// every tagged release of the same version.
func NewNightlyEVR(version, commitHash string, buildTime time.Time) (*EVR, error) {
	if len(commitHash) < 7 {
		return nil, fmt.Errorf("nightly evr requires a commit hash")
	}
	release := "0.0.n" + buildTime.Format("200601021504") + "git" + commitHash[:7]
	return NewEVR(version, release)
}

// Lowest returns the smallest representable EVR, useful as a comparison
// floor.
func Lowest() *EVR {
	return &EVR{RStage: "n000000000000git0000000"}
}

// Version renders the [epoch:]x.y.z component.
func (e *EVR) Version() string {
	version := fmt.Sprintf("%d.%d.%d", e.VMajor, e.VMinor, e.VPatch)
	if e.Epoch != 0 {
		return fmt.Sprintf("%d:%s", e.Epoch, version)
	}
	return version
}

// Release renders the release component.
func (e *EVR) Release() string {
	if e.RStage != "" {
		return fmt.Sprintf("%d.%d.%s", e.RMajor, e.RMinor, e.RStage)
	}
	if e.RMinor != 0 {
		return fmt.Sprintf("%d.%d", e.RMajor, e.RMinor)
	}
	return strconv.Itoa(e.RMajor)
}

// DistRelease renders the release with the dist macro for spec files.
func (e *EVR) DistRelease() string {
	return e.Release() + "%{?dist}"
}

func (e *EVR) String() string {
	return e.Version() + "-" + e.Release()
}

// IsNightly reports whether this is a nightly build.
func (e *EVR) IsNightly() bool {
	return strings.HasPrefix(e.RStage, "n")
}

// IsTagged reports whether this release should get a tag. Nightlies are
// not tagged, everything else is.
func (e *EVR) IsTagged() bool {
	return !e.IsNightly()
}

// Compare returns -1, 0, or 1 ordering e against other.
func (e *EVR) Compare(other *EVR) int {
	for _, pair := range [][2]int{
		{e.Epoch, other.Epoch},
		{e.VMajor, other.VMajor},
		{e.VMinor, other.VMinor},
		{e.VPatch, other.VPatch},
		{e.RMajor, other.RMajor},
		{e.RMinor, other.RMinor},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}

	return compareStages(e.RStage, other.RStage)
}

// Less reports whether e orders before other.
func (e *EVR) Less(other *EVR) bool {
	return e.Compare(other) < 0
}

// compareStages orders release stages: nightlies lowest, then
// alpha < beta < rc, GA (empty stage) highest.
func compareStages(a, b string) int {
	if a == b {
		return 0
	}

	rank := func(stage string) int {
		switch {
		case stage == "":
			return 2
		case strings.HasPrefix(stage, "n"):
			return 0
		default:
			return 1
		}
	}

	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	// Same rank: plain string compare. alpha < beta < rc holds, and
	// nightly strings embed a sortable timestamp.
	if a < b {
		return -1
	}
	return 1
}

// NextStage returns the stage after this one in the
// alpha -> beta -> rc -> GA cycle. Nightlies and GA releases start over
// at alpha. GA is the empty string.
func (e *EVR) NextStage() (string, error) {
	switch {
	case e.RStage == "" || e.IsNightly():
		return "alpha", nil
	case e.RStage == "alpha":
		return "beta", nil
	case e.RStage == "beta":
		return "rc", nil
	case e.RStage == "rc":
		return "", nil
	default:
		return "", fmt.Errorf("unknown release stage: %s", e.RStage)
	}
}

// Increment describes which component of an EVR to advance.
type Increment struct {
	// Major, Minor, Patch advance the version triplet; the release
	// resets accordingly.
	Major bool
	Minor bool
	Patch bool

	// Release moves to the GA release of the current version.
	Release bool

	// Stage advances through alpha -> beta -> rc -> GA.
	Stage bool

	// ForceStage, when non-nil, pins the resulting stage instead of
	// advancing it. An empty string means GA.
	ForceStage *string
}

// Incremented returns a copy of e advanced per inc. Before GA the
// release major stays 0 and the release minor counts pre-releases; the
// counter does not reset when the stage advances, keeping the RPM and
// python renderings interchangeable. Moving to GA sets the release to 1.
func (e *EVR) Incremented(inc Increment) (*EVR, error) {
	next := *e

	if !inc.Major && !inc.Minor && !inc.Patch && !inc.Release && !inc.Stage && inc.ForceStage == nil {
		return &next, nil
	}

	var nextStage string
	switch {
	case inc.ForceStage != nil:
		nextStage = *inc.ForceStage
	case inc.Stage:
		stage, err := e.NextStage()
		if err != nil {
			return nil, err
		}
		nextStage = stage
	case inc.Release:
		nextStage = ""
	default:
		nextStage = e.RStage
	}

	if nextStage == "" {
		inc.Release = true
	}

	if inc.Major || inc.Minor || inc.Patch {
		if inc.Release {
			next.RMajor = 1
			next.RMinor = 0
		} else {
			next.RMajor = 0
			next.RMinor = 1
		}
		next.RStage = nextStage
	}

	switch {
	case inc.Major:
		next.VMajor++
		next.VMinor = 0
		next.VPatch = 0
	case inc.Minor:
		next.VMinor++
		next.VPatch = 0
	case inc.Patch:
		next.VPatch++
	case nextStage != "":
		next.RMajor = 0
		next.RMinor++
		if inc.Stage || inc.ForceStage != nil {
			next.RStage = nextStage
		}
	case inc.Release && e.RStage != "":
		next.RMajor = 1
		next.RMinor = 0
		next.RStage = ""
	}

	return &next, nil
}

// PythonVersion renders the version per PEP 440:
//
//	1.2.3-0.1.alpha            -> 1.2.3a1
//	1.2.3-0.4.beta             -> 1.2.3b4
//	1.2.3-0.5.rc               -> 1.2.3rc5
//	1.2.0-1                    -> 1.2 (GA, trailing .0 dropped)
//	1.2.3-2                    -> 1.2.3.post2
//	1.2.3-0.0.n202601020304git -> 1.2.3.dev202601020304git...
func (e *EVR) PythonVersion() string {
	version := strings.Replace(e.Version(), ":", "!", 1)
	if e.VPatch == 0 {
		version = strings.TrimSuffix(version, ".0")
	}

	switch {
	case e.IsNightly():
		version += ".dev" + e.RStage[1:]
	case e.RStage != "":
		version += pythonStageMap[e.RStage] + strconv.Itoa(e.RMinor)
	case e.RMajor > 1:
		version += ".post" + strconv.Itoa(e.RMajor)
	}

	return version
}
