package domain

import (
	"encoding/json"
	"fmt"
)

type HistoryEventType string

const (
	HistoryHired           HistoryEventType = "hired"
	HistoryStageChanged    HistoryEventType = "stage_changed"
	HistoryProgressUpdated HistoryEventType = "progress_updated"
	HistoryCompletionConf  HistoryEventType = "completion_confirmed"
	HistoryMessage         HistoryEventType = "message"
	HistoryPollCreated     HistoryEventType = "poll_created"
	HistoryPollVoted       HistoryEventType = "poll_voted"
	HistoryPollClosed      HistoryEventType = "poll_closed"
	HistoryMaterialAdded   HistoryEventType = "material_added"
	HistoryMaterialRemoved HistoryEventType = "material_removed"
	HistoryJobCancelled    HistoryEventType = "job_cancelled"
)

// Feature groups history events for unread counters.
type Feature string

const (
	FeatureChat      Feature = "chat"
	FeaturePolls     Feature = "polls"
	FeatureMaterials Feature = "materials"
)

func ParseFeature(s string) (Feature, error) {
	switch f := Feature(s); f {
	case FeatureChat, FeaturePolls, FeatureMaterials:
		return f, nil
	}
	return "", fmt.Errorf("invalid feature %q", s)
}

// EventTypes returns the history event types counted for the feature.
func (f Feature) EventTypes() []HistoryEventType {
	switch f {
	case FeatureChat:
		return []HistoryEventType{HistoryMessage}
	case FeaturePolls:
		return []HistoryEventType{HistoryPollCreated, HistoryPollVoted, HistoryPollClosed}
	case FeatureMaterials:
		return []HistoryEventType{HistoryMaterialAdded, HistoryMaterialRemoved}
	}
	return nil
}

// HistoryMetadata is the payload of one history event. Each event type
// has its own struct; the type is the discriminator stored alongside it.
type HistoryMetadata interface {
	HistoryType() HistoryEventType
}

type HiredMeta struct {
	ProposalID  string   `json:"proposal_id,omitempty"`
	Direct      bool     `json:"direct"`
	AgreedPrice *float64 `json:"agreed_price,omitempty"`
}

type StageChangedMeta struct {
	From Stage  `json:"from"`
	To   Stage  `json:"to"`
	Note string `json:"note,omitempty"`
}

type ProgressUpdatedMeta struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type CompletionConfirmedMeta struct {
	ConfirmedAt string `json:"confirmed_at"`
}

type MessageMeta struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type PollMeta struct {
	Kind     HistoryEventType `json:"-"`
	PollID   string           `json:"poll_id"`
	Title    string           `json:"title,omitempty"`
	OptionID string           `json:"option_id,omitempty"`
}

type MaterialMeta struct {
	Kind       HistoryEventType `json:"-"`
	MaterialID string           `json:"material_id"`
	Name       string           `json:"name,omitempty"`
}

type JobCancelledMeta struct {
	Reason string `json:"reason,omitempty"`
}

func (HiredMeta) HistoryType() HistoryEventType               { return HistoryHired }
func (StageChangedMeta) HistoryType() HistoryEventType        { return HistoryStageChanged }
func (ProgressUpdatedMeta) HistoryType() HistoryEventType     { return HistoryProgressUpdated }
func (CompletionConfirmedMeta) HistoryType() HistoryEventType { return HistoryCompletionConf }
func (MessageMeta) HistoryType() HistoryEventType             { return HistoryMessage }
func (JobCancelledMeta) HistoryType() HistoryEventType        { return HistoryJobCancelled }

func (m PollMeta) HistoryType() HistoryEventType {
	if m.Kind == "" {
		return HistoryPollCreated
	}
	return m.Kind
}

func (m MaterialMeta) HistoryType() HistoryEventType {
	if m.Kind == "" {
		return HistoryMaterialAdded
	}
	return m.Kind
}

type HistoryEvent struct {
	ID        int64            `json:"id"`
	JobID     string           `json:"job_id"`
	Type      HistoryEventType `json:"type"`
	UserID    string           `json:"user_id"`
	Metadata  HistoryMetadata  `json:"metadata"`
	CreatedAt string           `json:"created_at" format:"date-time"`
}

// DecodeHistoryMetadata rebuilds the typed metadata for a stored event.
func DecodeHistoryMetadata(t HistoryEventType, raw []byte) (HistoryMetadata, error) {
	var (
		meta HistoryMetadata
		err  error
	)
	switch t {
	case HistoryHired:
		var m HiredMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case HistoryStageChanged:
		var m StageChangedMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case HistoryProgressUpdated:
		var m ProgressUpdatedMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case HistoryCompletionConf:
		var m CompletionConfirmedMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case HistoryMessage:
		var m MessageMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	case HistoryPollCreated, HistoryPollVoted, HistoryPollClosed:
		var m PollMeta
		err = unmarshalMeta(raw, &m)
		m.Kind = t
		meta = m
	case HistoryMaterialAdded, HistoryMaterialRemoved:
		var m MaterialMeta
		err = unmarshalMeta(raw, &m)
		m.Kind = t
		meta = m
	case HistoryJobCancelled:
		var m JobCancelledMeta
		err = unmarshalMeta(raw, &m)
		meta = m
	default:
		return nil, fmt.Errorf("unknown history event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", t, err)
	}
	return meta, nil
}

func unmarshalMeta(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
