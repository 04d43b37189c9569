package transfer

// FileProgress reports bytes transferred within the currently streaming
// file.
type FileProgress struct {
	Position uint64
	Size     uint64
}

// TransferProgress reports bytes transferred across the whole transfer
// (all files sent so far, plus progress within the current one).
type TransferProgress struct {
	File  FileProgress
	Sent  uint64
	Total uint64
}

// ProgressFunc is invoked as chunks stream out, weighted against the
// running total bytes sent across the whole transfer.
type ProgressFunc func(TransferProgress)
