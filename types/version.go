package types

// Version is the canonical project version.
// The CLI, the completion event payload and the archive records share it.
const Version = "0.3.0"

// ContractVersion is stamped on every completion event and archive record.
// Lockstep with Version.
const ContractVersion = Version
