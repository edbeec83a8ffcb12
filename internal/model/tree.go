package model

import "time"

// TreeMetadata describes a history file as recorded in its header
type TreeMetadata struct {
	FilePath    string
	BlockSize   uint32
	MaxChildren uint32
	NodeCount   uint32
	RootSeq     uint32
	Start       Timestamp
	End         Timestamp
	OpenedAt    time.Time
}

// NodeSummary is a per-node line of the inspect output
type NodeSummary struct {
	Seq       uint32
	ParentSeq uint32
	Level     uint16
	Kind      NodeKind
	Start     Timestamp
	End       Timestamp
	Intervals int
	Children  int
	FreeBytes int
	IsSealed  bool
}

// NodeKind distinguishes leaves from branch nodes
type NodeKind uint8

const (
	NodeKindLeaf   NodeKind = 1
	NodeKindBranch NodeKind = 2
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindLeaf:
		return "leaf"
	case NodeKindBranch:
		return "branch"
	default:
		return "unknown"
	}
}
