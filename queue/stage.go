// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package queue

import (
	"iter"
	"math/bits"
	"strings"
)

// Stage identifies an independent point of hardware
// execution.
// Each stage has its own completion and barrier state.
type Stage int

// Stages.
const (
	StageGeom Stage = iota
	StageFrag
	StageCompute
	StageTransfer
	StageOcclusionQuery

	// NStage is the number of stages.
	NStage
)

var stageNames = [NStage]string{
	StageGeom:           "geom",
	StageFrag:           "frag",
	StageCompute:        "compute",
	StageTransfer:       "transfer",
	StageOcclusionQuery: "occlusion-query",
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if s < 0 || s >= NStage {
		return "invalid"
	}
	return stageNames[s]
}

// ParseStage returns the Stage whose String method
// returns name.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// Mask returns a StageMask containing only s.
func (s Stage) Mask() StageMask { return 1 << s }

// StageMask is a set of stages.
type StageMask uint32

// Stage masks.
const (
	// SyncStages contains the stages that API pipeline
	// stage flags map onto.
	SyncStages StageMask = 1<<StageGeom | 1<<StageFrag | 1<<StageCompute | 1<<StageTransfer
	// AllStages contains every stage.
	AllStages StageMask = 1<<NStage - 1
)

// Has reports whether m contains s.
func (m StageMask) Has(s Stage) bool { return m&s.Mask() != 0 }

// Len returns the number of stages in m.
func (m StageMask) Len() int { return bits.OnesCount32(uint32(m)) }

// All returns an iterator over the stages in m, in
// increasing order.
// It panics if m contains bits that do not name a stage.
func (m StageMask) All() iter.Seq[Stage] {
	if m&^AllStages != 0 {
		panic("queue: invalid stage mask")
	}
	return func(yield func(Stage) bool) {
		for x := uint32(m); x != 0; x &= x - 1 {
			if !yield(Stage(bits.TrailingZeros32(x))) {
				return
			}
		}
	}
}

// String implements fmt.Stringer.
func (m StageMask) String() string {
	if m == 0 {
		return "none"
	}
	var sb strings.Builder
	for s := range (m & AllStages).All() {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(s.String())
	}
	if m&^AllStages != 0 {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString("invalid")
	}
	return sb.String()
}

// PipelineStage is a set of API pipeline stage flags.
type PipelineStage uint32

// Pipeline stage flags.
const (
	PipeTopOfPipe PipelineStage = 1 << iota
	PipeDrawIndirect
	PipeVertexInput
	PipeVertexShader
	PipeTessControlShader
	PipeTessEvaluationShader
	PipeGeometryShader
	PipeFragmentShader
	PipeEarlyFragmentTests
	PipeLateFragmentTests
	PipeColorAttachmentOutput
	PipeComputeShader
	PipeTransfer
	PipeBottomOfPipe
	PipeHost
	PipeAllGraphics
	PipeAllCommands
)

// stageMask converts the flags that have a direct stage
// equivalent.
func stageMask(f PipelineStage) (m StageMask) {
	if f&PipeAllCommands != 0 {
		return SyncStages
	}
	if f&PipeAllGraphics != 0 {
		m |= StageGeom.Mask() | StageFrag.Mask()
	}
	if f&(PipeDrawIndirect|PipeVertexInput|PipeVertexShader|PipeTessControlShader|PipeTessEvaluationShader|PipeGeometryShader) != 0 {
		m |= StageGeom.Mask()
	}
	if f&(PipeFragmentShader|PipeEarlyFragmentTests|PipeLateFragmentTests|PipeColorAttachmentOutput) != 0 {
		m |= StageFrag.Mask()
	}
	if f&(PipeDrawIndirect|PipeComputeShader) != 0 {
		m |= StageCompute.Mask()
	}
	if f&PipeTransfer != 0 {
		m |= StageTransfer.Mask()
	}
	return
}

// DstStageMask returns the stages that must wait when f
// is used as a destination (i.e., waiting) stage mask.
func DstStageMask(f PipelineStage) StageMask {
	// Nothing can happen before the top of the pipe,
	// so waiting there means waiting everywhere.
	if f&PipeTopOfPipe != 0 {
		return SyncStages
	}
	return stageMask(f)
}

// SrcStageMask returns the stages that must complete
// when f is used as a source (i.e., signaling) stage
// mask.
func SrcStageMask(f PipelineStage) StageMask {
	if f&PipeBottomOfPipe != 0 {
		return SyncStages
	}
	return stageMask(f)
}
