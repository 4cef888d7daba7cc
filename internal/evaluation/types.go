package evaluation

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusTemporary    Status = "TEMPORARY"
	StatusPendingAck   Status = "PENDING_ACK"
	StatusAcknowledged Status = "ACKNOWLEDGED"
)

// Result is the pass/fail outcome of an OPD attempt. Scored modules carry no result.
type Result string

const (
	ResultPass Result = "PASS"
	ResultFail Result = "FAIL"
	ResultNone Result = ""
)

// Answer is one item of a submitted evaluation. Scored modules use Score,
// OPD modules use YesNo ("Y" or "N").
type Answer struct {
	Item   string `json:"item"`
	Score  *int   `json:"score,omitempty"`
	YesNo  string `json:"yes_no,omitempty"`
	Remark string `json:"remark,omitempty"`
}

// Attempt is one dated evaluation within a container.
type Attempt struct {
	ID          string     `json:"id"`
	Seq         int        `json:"seq"`
	Date        time.Time  `json:"date"`
	FacultyID   string     `json:"faculty_id"`
	FacultyName string     `json:"faculty_name"`
	PatientName string     `json:"patient_name,omitempty"`
	Answers     []Answer   `json:"answers"`
	TotalScore  int        `json:"total_score"`
	MaxScore    int        `json:"max_score"`
	Grade       string     `json:"grade,omitempty"`
	Result      Result     `json:"result,omitempty"`
	Status      Status     `json:"status"`
	AckBy       *string    `json:"ack_by,omitempty"`
	AckAt       *time.Time `json:"ack_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Container aggregates all attempts for one (intern, module) pair.
type Container struct {
	ID         string    `json:"id"`
	InternID   string    `json:"intern_id"`
	ModuleCode string    `json:"module_code"`
	Attempts   []Attempt `json:"attempts"`
}

// Streak tracks consecutive acknowledged OPD passes for one (intern, module).
type Streak struct {
	InternID    string     `json:"intern_id"`
	ModuleCode  string     `json:"module_code"`
	Consecutive int        `json:"consecutive_success_count"`
	Competent   bool       `json:"competent"`
	AchievedAt  *time.Time `json:"achieved_at,omitempty"`
}

// Sentinel errors mapped to HTTP statuses at the handler boundary.
var (
	ErrModuleUnknown   = errors.New("unknown module")
	ErrInternNotFound  = errors.New("intern not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrNotOwner        = errors.New("attempt belongs to another intern")
)

// ValidationError rejects malformed submissions; Item names the offending
// answer item when one is known.
type ValidationError struct {
	Msg  string
	Item string
}

func (e *ValidationError) Error() string {
	if e.Item != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Item)
	}
	return e.Msg
}

// ConflictError rejects an acknowledgement of an attempt that is not
// pending, naming its current status.
type ConflictError struct {
	Current Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("attempt is %s, not %s", e.Current, StatusPendingAck)
}
