// Package model contains the record types shared across the pipeline.
package model

import (
	"time"
)

// Status describes where a track sits in the ingestion/promotion lifecycle.
type Status string

const (
	// StatusProcessed is set by the ingestion handler once the upload has
	// passed basic validation and landed in the media area.
	StatusProcessed Status = "processed"
	// StatusEnhanced is set after the enricher has extracted exact duration,
	// bitrate and embedded tags.
	StatusEnhanced Status = "enhanced"
	// StatusPromoted is terminal in the source environment. Only the promoter
	// writes this transition.
	StatusPromoted Status = "promoted"
	// StatusRejected marks a track that permanently failed validation.
	StatusRejected Status = "rejected"
)

// GenreUnknown is the sentinel genre until enrichment fills in a real one.
const GenreUnknown = "unknown"

// Track is the central metadata record. (ID, CreatedDate) forms the store's
// composite key; both are immutable after ingestion.
type Track struct {
	ID           string     `json:"id"`
	CreatedDate  time.Time  `json:"createdDate"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist,omitempty"`
	Genre        string     `json:"genre"`
	Description  string     `json:"description,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Filename     string     `json:"filename"`
	FileURL      string     `json:"fileUrl"`
	FileSize     int64      `json:"fileSize"`
	Duration     int        `json:"duration"`
	Bitrate      int        `json:"bitrate,omitempty"`
	Status       Status     `json:"status"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	FileHash     string     `json:"fileHash,omitempty"`
	PromotedAt   *time.Time `json:"promotedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy so a caller can derive a target-environment record
// without aliasing the source's tag slice.
func (t *Track) Clone() *Track {
	out := *t
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.PromotedAt != nil {
		at := *t.PromotedAt
		out.PromotedAt = &at
	}
	return &out
}

// Enrichment carries the fields the enricher may fill in. Zero values mean
// "leave the existing value alone".
type Enrichment struct {
	Title        string
	Artist       string
	Genre        string
	Description  string
	Tags         []string
	Duration     int
	Bitrate      int
	ThumbnailURL string
}

// Check is one validator rule result.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict is produced fresh on every validation call and never persisted.
type Verdict struct {
	Valid  bool    `json:"valid"`
	Checks []Check `json:"checks"`
}

// FailedChecks returns the names of the checks that did not pass.
func (v Verdict) FailedChecks() []string {
	var names []string
	for _, c := range v.Checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

// Outcome records one promotion attempt for notification and audit.
type Outcome struct {
	TrackID       string    `json:"trackId"`
	SourceEnv     string    `json:"sourceEnvironment"`
	TargetEnv     string    `json:"targetEnvironment"`
	FilesCopied   int       `json:"filesCopied"`
	RecordCreated bool      `json:"recordCreated"`
	PromotionDate time.Time `json:"promotionDate"`
	Verdict       *Verdict  `json:"validation,omitempty"`
	Err           string    `json:"error,omitempty"`
}

// Succeeded reports whether the attempt completed without error. An
// already-promoted track counts as success with RecordCreated=false.
func (o Outcome) Succeeded() bool {
	return o.Err == ""
}
