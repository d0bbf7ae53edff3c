package server

import (
	"homico/internal/domain"
	"homico/internal/sweep"
)

// Request payloads

type CreateJobRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Budget      *float64 `json:"budget,omitempty"`
	JobType     string   `json:"job_type,omitempty" enum:"marketplace,direct_request"`
	InvitedPros []string `json:"invited_pros,omitempty"`
}

type InviteProsRequest struct {
	ProIDs []string `json:"pro_ids" minItems:"1"`
}

type CancelJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SubmitProposalRequest struct {
	CoverLetter           string  `json:"cover_letter"`
	ProposedPrice         float64 `json:"proposed_price"`
	EstimatedDuration     int     `json:"estimated_duration"`
	EstimatedDurationUnit string  `json:"estimated_duration_unit" enum:"days,weeks,months"`
}

type ShortlistRequest struct {
	HiringChoice string `json:"hiring_choice" enum:"homico,direct"`
}

type StageRequest struct {
	Stage  string   `json:"stage" enum:"hired,started,in_progress,review,completed"`
	Note   string   `json:"note,omitempty"`
	Images []string `json:"images,omitempty"`
}

type ProgressRequest struct {
	Progress int `json:"progress"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

type ViewedRequest struct {
	Feature string `json:"feature" enum:"chat,polls,materials"`
}

type VerificationRequest struct {
	Status string `json:"status" enum:"verified,unverified,suspended"`
}

// Responses

type AcceptResponse struct {
	Proposal domain.Proposal        `json:"proposal"`
	Tracking domain.ProjectTracking `json:"tracking"`
}

type CountResponse struct {
	Updated int64 `json:"updated"`
}

type SweepResponse struct {
	Expired int `json:"expired"`
}

type SweepStatusResponse struct {
	Running bool          `json:"running"`
	Last    *sweep.Result `json:"last,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
