package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"homico/internal/domain"
)

// Event types written to the admin-observable log.
const (
	JobCreated            = "job.created"
	JobInvited            = "job.invited"
	JobCancelled          = "job.cancelled"
	JobRenewed            = "job.renewed"
	JobExpired            = "job.expired"
	ProposalSubmitted     = "proposal.submitted"
	ProposalShortlisted   = "proposal.shortlisted"
	ProposalAccepted      = "proposal.accepted"
	ProposalRejected      = "proposal.rejected"
	ProposalReverted      = "proposal.reverted"
	ProposalWithdrawn     = "proposal.withdrawn"
	ProposalContact       = "proposal.contact_revealed"
	DirectAccepted        = "direct.accepted"
	DirectDeclined        = "direct.declined"
	ProjectStageChanged   = "project.stage_changed"
	ProjectProgress       = "project.progress_updated"
	CompletionConfirmed   = "project.completion_confirmed"
	ProVerificationChange = "pro.verification_changed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, jobID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,job_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		domain.FormatTime(w.Now()), evtType, nullable(jobID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
