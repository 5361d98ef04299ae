package analysis

import "fmt"

// MaxMergeStrength is the strongest merge level the lattice understands.
// Limits.MaxMergeStrength may lower it but never raise it.
const MaxMergeStrength = 3

// Limits bounds how many distinct values the engine keeps per kind of slot
// before it starts merging them more aggressively.
type Limits struct {
	// Per-slot member limits
	NormalArgumentTypes int // Values per call argument before escalation (default: 10)
	IndexTypes          int // Values per array index cell (default: 50)
	InstanceMembers     int // Values per object property (default: 50)
	DictKeyTypes        int // Distinct keys tracked by a keyed map (default: 10)
	DictValueTypes      int // Values per keyed map entry (default: 30)
	ReturnTypes         int // Values per function return cell (default: 20)
	AssignedTypes       int // Values per module binding (default: 100)

	// Highest merge strength a slot may escalate to (0..MaxMergeStrength)
	MaxMergeStrength int
}

// DefaultLimits returns the limits used for ordinary projects.
func DefaultLimits() Limits {
	return Limits{
		NormalArgumentTypes: 10,
		IndexTypes:          50,
		InstanceMembers:     50,
		DictKeyTypes:        10,
		DictValueTypes:      30,
		ReturnTypes:         20,
		AssignedTypes:       100,
		MaxMergeStrength:    MaxMergeStrength,
	}
}

// LowLimits returns tighter limits for very large projects, trading
// precision for bounded memory.
func LowLimits() Limits {
	return Limits{
		NormalArgumentTypes: 1,
		IndexTypes:          1,
		InstanceMembers:     1,
		DictKeyTypes:        1,
		DictValueTypes:      1,
		ReturnTypes:         1,
		AssignedTypes:       1,
		MaxMergeStrength:    MaxMergeStrength,
	}
}

// Validate reports the first limit that is out of range.
func (l Limits) Validate() error {
	fields := []struct {
		name string
		v    int
	}{
		{"normalArgumentTypes", l.NormalArgumentTypes},
		{"indexTypes", l.IndexTypes},
		{"instanceMembers", l.InstanceMembers},
		{"dictKeyTypes", l.DictKeyTypes},
		{"dictValueTypes", l.DictValueTypes},
		{"returnTypes", l.ReturnTypes},
		{"assignedTypes", l.AssignedTypes},
	}
	for _, f := range fields {
		if f.v < 1 {
			return fmt.Errorf("limit %s must be at least 1, got %d", f.name, f.v)
		}
	}
	if l.MaxMergeStrength < 0 || l.MaxMergeStrength > MaxMergeStrength {
		return fmt.Errorf("limit maxMergeStrength must be within 0..%d, got %d", MaxMergeStrength, l.MaxMergeStrength)
	}
	return nil
}

// maxStrength clamps the configured maximum to what the lattice supports.
func (l Limits) maxStrength() int {
	if l.MaxMergeStrength < 0 {
		return 0
	}
	if l.MaxMergeStrength > MaxMergeStrength {
		return MaxMergeStrength
	}
	return l.MaxMergeStrength
}

// Options configures a Project.
type Options struct {
	Limits Limits

	// Driver safeguards
	MaxIterations int // Unit executions per Analyze call before giving up (default: 100000)
	Workers       int // Goroutines used by AnalyzeParallel (default: 4)

	// Logging configuration
	LogLevel string     // Log level: "error", "warn", "info", "debug" (default: "" = silent)
	Logger   Logger     // Overrides LogLevel when set
	Log      LogOptions // Truncation of value sets in debug lines

	// Import resolution
	ResolveCacheSize int // Entries kept by the specifier resolution cache (default: 1024)
}

// DefaultOptions returns the default project configuration.
func DefaultOptions() Options {
	return Options{
		Limits:           DefaultLimits(),
		MaxIterations:    100000,
		Workers:          4,
		LogLevel:         "",
		Log:              LogOptions{MaxMembers: 5, MaxProperties: 3},
		ResolveCacheSize: 1024,
	}
}
