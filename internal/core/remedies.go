package core

// Explanation returns the fixed human-readable description for an error kind.
func Explanation(kind Kind) string {
	if e, ok := explanations[kind]; ok {
		return e
	}
	return explanations[KindUnknown]
}

// Remedies returns the ordered list of suggested fixes for an error kind.
// Remedies are surfaced to the user and never acted on automatically.
func Remedies(kind Kind) []string {
	if r, ok := remedies[kind]; ok {
		out := make([]string, len(r))
		copy(out, r)
		return out
	}
	return Remedies(KindUnknown)
}

var explanations = map[Kind]string{
	KindFileNotFound: "The database file could not be found at the expected location. " +
		"It may have been moved, renamed, or deleted, or the application may be " +
		"looking in the wrong directory.",
	KindPermissionDenied: "The operating system refused read or write access to the " +
		"database file or its directory. The current user account lacks the " +
		"required permissions.",
	KindDiskFull: "There is not enough free space on the volume holding the database. " +
		"Writes, backups, and repairs all need headroom beyond the file's current size.",
	KindFileLocked: "Another process is holding the database file open, preventing " +
		"this application from acquiring it. This is usually a second instance of " +
		"the application or a backup/sync tool.",
	KindCorruption: "The database file failed structural verification. Its contents " +
		"may be partially or fully unreadable, typically after an unclean shutdown, " +
		"disk fault, or interrupted write.",
	KindNetworkPath: "The database lives on a network location that is currently " +
		"unreachable. Network shares can disappear when the host is offline or " +
		"credentials expire.",
	KindSecurityBlock: "Antivirus or endpoint-protection software appears to be " +
		"blocking access to the database file. Real-time scanners sometimes hold " +
		"or quarantine database files mid-write.",
	KindInvalidPath: "The configured database path is malformed: it may contain " +
		"characters the file system rejects, exceed the platform's path-length " +
		"limit, or point at something that is not a file.",
	KindUnknown: "The storage layer hit a failure it could not classify. The " +
		"underlying error text is the best available clue.",
}

var remedies = map[Kind][]string{
	KindFileNotFound: {
		"Verify the database path in the configuration file",
		"Restore the most recent backup with 'litekeeper backup restore'",
		"Let the application create a fresh database at the resolved location",
		"Search the candidate locations with 'litekeeper resolve'",
	},
	KindPermissionDenied: {
		"Run the application as a user with write access to the data directory",
		"Fix directory ownership or ACLs on the database folder",
		"Move the database to a per-user writable location (see 'litekeeper resolve')",
		"On Windows, avoid Program Files for writable data",
	},
	KindDiskFull: {
		"Free space on the volume holding the database",
		"Prune old backups with the retention cleanup",
		"Move the database to a volume with more headroom and migrate the data",
	},
	KindFileLocked: {
		"Close other instances of the application",
		"Wait for backup or sync tools to release the file and retry",
		"Identify the holder with 'litekeeper doctor' and close it",
		"Reboot if a crashed process left a stale lock",
	},
	KindCorruption: {
		"Run 'litekeeper check' for a full integrity report",
		"Attempt 'litekeeper repair' (a safety backup is taken first)",
		"Restore the most recent healthy backup",
		"If no backup exists, continue with a fresh database and re-enter data",
	},
	KindNetworkPath: {
		"Check that the network host is online and the share is mounted",
		"Re-authenticate against the share if credentials expired",
		"Move the database to a local disk; network shares are unsupported for live use",
	},
	KindSecurityBlock: {
		"Add the database directory to the security software's exclusion list",
		"Check the quarantine area for the database file",
		"Temporarily disable real-time scanning to confirm the diagnosis",
	},
	KindInvalidPath: {
		"Remove reserved characters (<>:\"|?*) from the configured path",
		"Shorten the path below the platform limit",
		"Use an absolute path to a regular directory",
	},
	KindUnknown: {
		"Inspect the log output for the underlying error",
		"Run 'litekeeper doctor' for an environment diagnosis",
		"Retry the operation; transient conditions often clear on their own",
	},
}
