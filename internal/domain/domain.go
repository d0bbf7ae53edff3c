package domain

import "time"

// TimeLayout is RFC3339 with fixed millisecond precision so stored
// timestamps compare correctly as strings.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp produced by FormatTime (or plain RFC3339).
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type JobType string

const (
	JobTypeMarketplace   JobType = "marketplace"
	JobTypeDirectRequest JobType = "direct_request"
)

type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
	JobExpired    JobStatus = "expired"
)

// Hired reports whether a job in this status must carry a hired professional.
func (s JobStatus) Hired() bool {
	return s == JobInProgress || s == JobCompleted
}

type ProposalStatus string

const (
	ProposalPending     ProposalStatus = "pending"
	ProposalShortlisted ProposalStatus = "shortlisted"
	ProposalAccepted    ProposalStatus = "accepted"
	ProposalRejected    ProposalStatus = "rejected"
	ProposalWithdrawn   ProposalStatus = "withdrawn"
)

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalAccepted || s == ProposalWithdrawn
}

type HiringChoice string

const (
	HiringChoiceHomico HiringChoice = "homico"
	HiringChoiceDirect HiringChoice = "direct"
)

func (c HiringChoice) Valid() bool {
	return c == HiringChoiceHomico || c == HiringChoiceDirect
}

type Job struct {
	ID            string    `json:"id"`
	DisplayNumber int64     `json:"display_number"`
	ClientID      string    `json:"client_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category"`
	Budget        *float64  `json:"budget,omitempty"`
	JobType       JobType   `json:"job_type" enum:"marketplace,direct_request"`
	Status        JobStatus `json:"status" enum:"open,in_progress,completed,cancelled,expired"`
	HiredProID    *string   `json:"hired_pro_id,omitempty"`
	InvitedPros   []string  `json:"invited_pros,omitempty"`
	DeclinedPros  []string  `json:"declined_pros,omitempty"`
	ProposalCount int       `json:"proposal_count"`
	ViewCount     int       `json:"view_count"`
	ExpiresAt     string    `json:"expires_at" format:"date-time"`
	CreatedAt     string    `json:"created_at" format:"date-time"`
	UpdatedAt     string    `json:"updated_at" format:"date-time"`
	CompletedAt   *string   `json:"completed_at,omitempty" format:"date-time"`
	CancelledAt   *string   `json:"cancelled_at,omitempty" format:"date-time"`
}

// PendingInvitees returns invited professionals that have not declined.
func (j Job) PendingInvitees() []string {
	declined := make(map[string]bool, len(j.DeclinedPros))
	for _, id := range j.DeclinedPros {
		declined[id] = true
	}
	var out []string
	for _, id := range j.InvitedPros {
		if !declined[id] {
			out = append(out, id)
		}
	}
	return out
}

func (j Job) IsInvited(proID string) bool {
	for _, id := range j.InvitedPros {
		if id == proID {
			return true
		}
	}
	return false
}

type Proposal struct {
	ID                    string         `json:"id"`
	JobID                 string         `json:"job_id"`
	ProID                 string         `json:"pro_id"`
	CoverLetter           string         `json:"cover_letter"`
	ProposedPrice         float64        `json:"proposed_price"`
	EstimatedDuration     int            `json:"estimated_duration"`
	EstimatedDurationUnit string         `json:"estimated_duration_unit" enum:"days,weeks,months"`
	Status                ProposalStatus `json:"status" enum:"pending,shortlisted,accepted,rejected,withdrawn"`
	HiringChoice          *HiringChoice  `json:"hiring_choice,omitempty" enum:"homico,direct"`
	ContactRevealed       bool           `json:"contact_revealed"`
	RevealedAt            *string        `json:"revealed_at,omitempty" format:"date-time"`
	ViewedByClient        bool           `json:"viewed_by_client"`
	ViewedByPro           bool           `json:"viewed_by_pro"`
	CreatedAt             string         `json:"created_at" format:"date-time"`
	UpdatedAt             string         `json:"updated_at" format:"date-time"`
}

type StageEntry struct {
	ID        int64   `json:"id"`
	Stage     Stage   `json:"stage"`
	EnteredAt string  `json:"entered_at" format:"date-time"`
	ExitedAt  *string `json:"exited_at,omitempty" format:"date-time"`
	ChangedBy string  `json:"changed_by"`
	Note      string  `json:"note,omitempty"`
}

type ProjectTracking struct {
	ID                    string       `json:"id"`
	JobID                 string       `json:"job_id"`
	ClientID              string       `json:"client_id"`
	ProID                 string       `json:"pro_id"`
	ProposalID            *string      `json:"proposal_id,omitempty"`
	CurrentStage          Stage        `json:"current_stage" enum:"hired,started,in_progress,review,completed"`
	Progress              int          `json:"progress"`
	AgreedPrice           *float64     `json:"agreed_price,omitempty"`
	EstimatedDuration     *int         `json:"estimated_duration,omitempty"`
	EstimatedDurationUnit string       `json:"estimated_duration_unit,omitempty"`
	CompletionImages      []string     `json:"completion_images,omitempty"`
	StageHistory          []StageEntry `json:"stage_history"`
	HiredAt               string       `json:"hired_at" format:"date-time"`
	StartedAt             *string      `json:"started_at,omitempty" format:"date-time"`
	CompletedAt           *string      `json:"completed_at,omitempty" format:"date-time"`
	ClientConfirmedAt     *string      `json:"client_confirmed_at,omitempty" format:"date-time"`
	UpdatedAt             string       `json:"updated_at" format:"date-time"`
}

// Counterparty returns the other side of the engagement for userID.
func (p ProjectTracking) Counterparty(userID string) string {
	if userID == p.ClientID {
		return p.ProID
	}
	return p.ClientID
}

func (p ProjectTracking) IsParticipant(userID string) bool {
	return userID != "" && (userID == p.ClientID || userID == p.ProID)
}

// Event is an entry of the admin-observable change log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	JobID      string `json:"job_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// UnreadCounts are computed from history timestamps and per-party markers.
type UnreadCounts struct {
	Chat      int `json:"chat"`
	Polls     int `json:"polls"`
	Materials int `json:"materials"`
}
