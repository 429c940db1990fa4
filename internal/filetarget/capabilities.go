package filetarget

// Capabilities describes what the host platform allows the subsystem to do
// with user-chosen files. Resolved once at startup and threaded through the
// orchestrators as configuration instead of being re-probed per call.
type Capabilities struct {
	// SupportsNativeFileHandles is true when the process can hold an open
	// reference to a user-chosen file and write it directly.
	SupportsNativeFileHandles bool

	// CanPersistHandleAcrossRestarts is false everywhere: a live handle is an
	// in-memory capability and a restart always forces re-acquisition.
	CanPersistHandleAcrossRestarts bool
}

// DetectCapabilities resolves capabilities from the configured file access
// mode. "manual" models sandboxed deployments where the engine may never
// touch user files directly and the external file is a manual import/export
// target only.
func DetectCapabilities(mode string) Capabilities {
	switch mode {
	case "manual":
		return Capabilities{}
	default: // "native" and "auto"
		return Capabilities{SupportsNativeFileHandles: true}
	}
}
