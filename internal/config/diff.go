package config

// ConfigDiff describes what changed between two configs, split by how the
// change can be applied. Log level flips in place; mode and device changes
// need the stop/reconfigure/start sequence; geometry and worker sizing need
// a full restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ModeChanged reports an engine.mode change. Applying it requires
	// stopping the active stream first.
	ModeChanged bool
	NewMode     string

	// DeviceChanged reports a change to the device selection or stream
	// geometry. Same reconfigure sequence as a mode change.
	DeviceChanged bool
	NewDevice     DeviceConfig

	// RequiresRestart reports a change to ring/pool geometry or worker
	// sizing, which are fixed at initialization.
	RequiresRestart bool
}

// Empty reports whether the diff carries no changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ModeChanged && !d.DeviceChanged && !d.RequiresRestart
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Engine.Mode != new.Engine.Mode {
		d.ModeChanged = true
		d.NewMode = new.Engine.Mode
	}

	if old.Device != new.Device {
		d.DeviceChanged = true
		d.NewDevice = new.Device
	}

	if old.Engine.RingFrames != new.Engine.RingFrames ||
		old.Engine.FrameSamples != new.Engine.FrameSamples ||
		old.Engine.PoolBuffers != new.Engine.PoolBuffers ||
		old.Workers != new.Workers ||
		old.Analysis != new.Analysis {
		d.RequiresRestart = true
	}

	return d
}
