package models

import "time"

// StageName identifies a node in the pipeline state machine.
type StageName string

const (
	StageClassify       StageName = "classify"
	StagePrefetch       StageName = "prefetch"
	StageRAG            StageName = "rag"
	StageScenarioGen    StageName = "scenario_gen"
	StageParallelExec   StageName = "parallel_exec"
	StageMetaSynthesis  StageName = "meta_synthesis"
	StageAgentSelection StageName = "agent_selection"
	StageAgents         StageName = "agents"
	StageDebate         StageName = "debate"
	StageCritique       StageName = "critique"
	StageVerify         StageName = "verify"
	StageSynthesize     StageName = "synthesize"
	StageDone           StageName = "done"
)

// EventStatus is the lifecycle status carried on a ProgressEvent.
type EventStatus string

const (
	StatusReady     EventStatus = "ready"
	StatusRunning   EventStatus = "running"
	StatusStreaming EventStatus = "streaming"
	StatusComplete  EventStatus = "complete"
	StatusError     EventStatus = "error"
)

// ProgressEvent is emitted by stages and consumed once per subscriber.
type ProgressEvent struct {
	Stage     StageName   `json:"stage"`
	Status    EventStatus `json:"status"`
	Payload   any         `json:"payload,omitempty"`
	LatencyMs *int64      `json:"latency_ms,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DonePayload is the payload carried by the terminal {stage=done} event.
type DonePayload struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id"`
	Reason    string `json:"reason,omitempty"`
}
