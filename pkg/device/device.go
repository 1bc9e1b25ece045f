// Package device defines the job-queue interface of the RXP accelerator and
// provides software backends for hosts without the hardware.
//
// The hardware model is asynchronous: callers prepare a job buffer, enqueue
// it on a port queue, dispatch pending jobs to the device, and poll the same
// queue for response buffers. A response carries a bounded match list; the
// device may detect more matches than it can report.
package device

import "errors"

// ErrNotProgrammed is returned by search-path operations before a rule
// program has been loaded onto the device.
var ErrNotProgrammed = errors.New("device: no rule program loaded")

// JobSpec describes one search job prior to preparation.
//
// The hardware accepts up to four subset routing keys per job; this adapter
// routes every job to a single subset and fills all four slots with the same
// id. Whether the device truly correlates four independent keys is a
// hardware protocol detail; the slots are carried through as given.
type JobSpec struct {
	ID      uint64 // must be non-zero
	Data    []byte
	Ctrl    uint16
	Subsets [4]uint16
}

// MatchRecord is one match reported by the device.
type MatchRecord struct {
	RuleID   uint32
	StartPtr uint32
	Length   uint16
}

// End returns the end offset of the match within the job buffer.
func (m MatchRecord) End() int {
	return int(m.StartPtr) + int(m.Length)
}

// ResponseData is the decoded form of one response buffer. DetectedMatches
// may exceed len(Matches) when the device ran out of match-report space;
// the excess matches are lost.
type ResponseData struct {
	JobID           uint64
	Matches         []MatchRecord
	DetectedMatches uint32
}

// Job is an opaque prepared job buffer owned by the device.
type Job struct {
	spec JobSpec
}

// Response is an opaque response buffer. It must be released with
// FreeBuffer once decoded and processed.
type Response struct {
	data  *ResponseData
	err   error
	freed bool
}

// Device is the accelerator capability the adapter depends on. Bring-up is
// sequential: RuntimeInit, PortInit, EngineInit, ProgramRules, Enable. The
// search path is PrepareJob, EnqueueJob, DispatchJobs, GetResponses,
// ResponseData, FreeBuffer.
type Device interface {
	// MaxJobLength reports the largest buffer one job may carry.
	MaxJobLength() int

	// RuntimeInit brings up the underlying packet/IO runtime layer.
	RuntimeInit() error

	// PortInit initializes the device port with the given queue count.
	PortInit(numQueues int) error

	// EngineInit initializes the matching engine behind the port.
	EngineInit() error

	// ProgramRules loads a compiled rule program onto the device.
	ProgramRules(queue int, path string) error

	// Enable opens the port for job traffic.
	Enable() error

	// Disable quiesces the port.
	Disable() error

	// PrepareJob builds a device job buffer from the spec.
	PrepareJob(spec JobSpec) (*Job, error)

	// EnqueueJob places a prepared job on a port queue.
	EnqueueJob(queue int, job *Job) error

	// DispatchJobs pushes enqueued jobs to the device, reporting how many
	// were sent and how many remain pending.
	DispatchJobs(queue int) (sent, pending int, err error)

	// GetResponses polls a queue for up to max response buffers without
	// blocking. An empty slice means nothing has arrived yet.
	GetResponses(queue int, max int) ([]*Response, error)

	// ResponseData decodes a response buffer. A decode error may still be
	// accompanied by partial match data.
	ResponseData(r *Response) (*ResponseData, error)

	// FreeBuffer releases a response buffer.
	FreeBuffer(r *Response)
}
