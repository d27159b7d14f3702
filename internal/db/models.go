package db

import (
	"encoding/json"
	"time"
)

// Region maps editorial.regions.
type Region struct {
	RegionID   int64     `gorm:"column:region_id;primaryKey;autoIncrement"`
	RegionUUID string    `gorm:"column:region_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Slug       string    `gorm:"column:slug;type:text;not null;unique"`
	Name       string    `gorm:"column:name;type:text;not null"`
	Timezone   string    `gorm:"column:timezone;type:text;not null;default:UTC"`
	Enabled    bool      `gorm:"column:enabled;type:boolean;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Region) TableName() string { return "editorial.regions" }

// RawSignal maps editorial.raw_signals. One row per fetched raw record from a
// business/news/event source, before dedup admits it into the draft pipeline.
type RawSignal struct {
	RawSignalID   int64           `gorm:"column:raw_signal_id;primaryKey;autoIncrement"`
	RawSignalUUID string          `gorm:"column:raw_signal_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RegionID      int64           `gorm:"column:region_id;type:bigint;not null;index"`
	Source        string          `gorm:"column:source;type:text;not null"`
	ExternalID    *string         `gorm:"column:external_id;type:text"`
	Kind          string          `gorm:"column:kind;type:text;not null"`
	SourceURL     *string         `gorm:"column:source_url;type:text"`
	Title         string          `gorm:"column:title;type:text;not null"`
	OccursOn      *time.Time      `gorm:"column:occurs_on;type:date"`
	Language      string          `gorm:"column:language;type:text;not null;default:und"`
	RawPayload    json.RawMessage `gorm:"column:raw_payload;type:jsonb;not null"`
	PayloadHash   []byte          `gorm:"column:payload_hash;type:bytea;not null"`
	ContentHash   []byte          `gorm:"column:content_hash;type:bytea"`
	FetchedAt     time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RawSignal) TableName() string { return "editorial.raw_signals" }

// Workspace maps editorial.workspaces. The synthetic system workspace owns all
// AI-matched venues and performers and is lazily created on first use.
type Workspace struct {
	WorkspaceID   int64     `gorm:"column:workspace_id;primaryKey;autoIncrement"`
	WorkspaceUUID string    `gorm:"column:workspace_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Name          string    `gorm:"column:name;type:text;not null;unique"`
	Synthetic     bool      `gorm:"column:synthetic;type:boolean;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Workspace) TableName() string { return "editorial.workspaces" }

// Venue maps editorial.venues.
type Venue struct {
	VenueID        int64     `gorm:"column:venue_id;primaryKey;autoIncrement"`
	VenueUUID      string    `gorm:"column:venue_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	WorkspaceID    int64     `gorm:"column:workspace_id;type:bigint;not null;uniqueIndex:uq_venue_workspace_name,priority:1"`
	Name           string    `gorm:"column:name;type:text;not null"`
	NormalizedName string    `gorm:"column:normalized_name;type:text;not null;uniqueIndex:uq_venue_workspace_name,priority:2"`
	Address        *string   `gorm:"column:address;type:text"`
	Latitude       *float64  `gorm:"column:latitude;type:double precision"`
	Longitude      *float64  `gorm:"column:longitude;type:double precision"`
	PostalCode     *string   `gorm:"column:postal_code;type:text"`
	PlaceID        *string   `gorm:"column:place_id;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Venue) TableName() string { return "editorial.venues" }

// Performer maps editorial.performers.
type Performer struct {
	PerformerID    int64     `gorm:"column:performer_id;primaryKey;autoIncrement"`
	PerformerUUID  string    `gorm:"column:performer_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	WorkspaceID    int64     `gorm:"column:workspace_id;type:bigint;not null;uniqueIndex:uq_performer_workspace_name,priority:1"`
	Name           string    `gorm:"column:name;type:text;not null"`
	NormalizedName string    `gorm:"column:normalized_name;type:text;not null;uniqueIndex:uq_performer_workspace_name,priority:2"`
	Genre          *string   `gorm:"column:genre;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Performer) TableName() string { return "editorial.performers" }

// ArticleDraft maps editorial.article_drafts. Status values are owned by the
// draft package's article transition table.
type ArticleDraft struct {
	ArticleDraftID      int64           `gorm:"column:article_draft_id;primaryKey;autoIncrement"`
	ArticleDraftUUID    string          `gorm:"column:article_draft_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RegionID            int64           `gorm:"column:region_id;type:bigint;not null;index"`
	RawSignalID         *int64          `gorm:"column:raw_signal_id;type:bigint;unique"`
	Status              string          `gorm:"column:status;type:text;not null;index"`
	SourceURL           *string         `gorm:"column:source_url;type:text"`
	ExternalID          *string         `gorm:"column:external_id;type:text"`
	SourceTitle         string          `gorm:"column:source_title;type:text;not null"`
	NormalizedTitle     string          `gorm:"column:normalized_title;type:text;not null"`
	Summary             *string         `gorm:"column:summary;type:text"`
	ContentHash         []byte          `gorm:"column:content_hash;type:bytea;not null;index"`
	SignalDate          *time.Time      `gorm:"column:signal_date;type:date"`
	Topics              json.RawMessage `gorm:"column:topics;type:jsonb"`
	RelevanceScore      *float64        `gorm:"column:relevance_score;type:double precision"`
	QualityScore        *float64        `gorm:"column:quality_score;type:double precision"`
	FactCheckConfidence *float64        `gorm:"column:fact_check_confidence;type:double precision"`
	Outline             json.RawMessage `gorm:"column:outline;type:jsonb"`
	GeneratedTitle      *string         `gorm:"column:generated_title;type:text"`
	GeneratedBody       *string         `gorm:"column:generated_body;type:text"`
	GeneratedExcerpt    *string         `gorm:"column:generated_excerpt;type:text"`
	SEOKeywords         json.RawMessage `gorm:"column:seo_keywords;type:jsonb"`
	ImageURL            *string         `gorm:"column:image_url;type:text"`
	ImageAttribution    *string         `gorm:"column:image_attribution;type:text"`
	RejectionReason     *string         `gorm:"column:rejection_reason;type:text"`
	CreatedAt           time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ArticleDraft) TableName() string { return "editorial.article_drafts" }

// EventDraft maps editorial.event_drafts.
type EventDraft struct {
	EventDraftID         int64           `gorm:"column:event_draft_id;primaryKey;autoIncrement"`
	EventDraftUUID       string          `gorm:"column:event_draft_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RegionID             int64           `gorm:"column:region_id;type:bigint;not null;index"`
	RawSignalID          *int64          `gorm:"column:raw_signal_id;type:bigint;unique"`
	Status               string          `gorm:"column:status;type:text;not null;index"`
	SourceURL            *string         `gorm:"column:source_url;type:text"`
	ExternalID           *string         `gorm:"column:external_id;type:text"`
	Title                string          `gorm:"column:title;type:text;not null"`
	NormalizedTitle      string          `gorm:"column:normalized_title;type:text;not null"`
	ContentHash          []byte          `gorm:"column:content_hash;type:bytea;not null;index"`
	VenueName            *string         `gorm:"column:venue_name;type:text"`
	VenueID              *int64          `gorm:"column:venue_id;type:bigint"`
	PerformerName        *string         `gorm:"column:performer_name;type:text"`
	PerformerID          *int64          `gorm:"column:performer_id;type:bigint"`
	StartsOn             *time.Time      `gorm:"column:starts_on;type:date"`
	StartsAt             *time.Time      `gorm:"column:starts_at;type:timestamptz"`
	Description          *string         `gorm:"column:description;type:text"`
	Topics               json.RawMessage `gorm:"column:topics;type:jsonb"`
	DetectionConfidence  *float64        `gorm:"column:detection_confidence;type:double precision"`
	ExtractionConfidence *float64        `gorm:"column:extraction_confidence;type:double precision"`
	RejectionReason      *string         `gorm:"column:rejection_reason;type:text"`
	CreatedAt            time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (EventDraft) TableName() string { return "editorial.event_drafts" }

// FactCheck maps editorial.fact_checks. Rows are created once per claim and
// never mutated.
type FactCheck struct {
	FactCheckID        int64           `gorm:"column:fact_check_id;primaryKey;autoIncrement"`
	FactCheckUUID      string          `gorm:"column:fact_check_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ArticleDraftID     int64           `gorm:"column:article_draft_id;type:bigint;not null;index"`
	ClaimText          string          `gorm:"column:claim_text;type:text;not null"`
	VerificationResult string          `gorm:"column:verification_result;type:text;not null"`
	ConfidenceScore    float64         `gorm:"column:confidence_score;type:double precision;not null"`
	Evidence           json.RawMessage `gorm:"column:evidence;type:jsonb"`
	Rationale          *string         `gorm:"column:rationale;type:text"`
	CreatedAt          time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (FactCheck) TableName() string { return "editorial.fact_checks" }

// PublishedPost maps editorial.published_posts. published_at is set only at
// the moment traffic control approves publication.
type PublishedPost struct {
	PostID         int64           `gorm:"column:post_id;primaryKey;autoIncrement"`
	PostUUID       string          `gorm:"column:post_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RegionID       int64           `gorm:"column:region_id;type:bigint;not null;index"`
	ArticleDraftID *int64          `gorm:"column:article_draft_id;type:bigint;unique"`
	EventDraftID   *int64          `gorm:"column:event_draft_id;type:bigint;unique"`
	Slug           string          `gorm:"column:slug;type:text;not null;unique"`
	Title          string          `gorm:"column:title;type:text;not null"`
	Body           string          `gorm:"column:body;type:text;not null"`
	Excerpt        *string         `gorm:"column:excerpt;type:text"`
	Category       string          `gorm:"column:category;type:text;not null;index"`
	SEOKeywords    json.RawMessage `gorm:"column:seo_keywords;type:jsonb"`
	ImageURL       *string         `gorm:"column:image_url;type:text"`
	Breaking       bool            `gorm:"column:breaking;type:boolean;not null;default:false"`
	PublishedAt    time.Time       `gorm:"column:published_at;type:timestamptz;not null;index"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (PublishedPost) TableName() string { return "editorial.published_posts" }

// WorkflowRun maps editorial.workflow_runs. One row per region per pipeline
// invocation, mirroring the aggregate result the orchestrator reports.
type WorkflowRun struct {
	RunID        int64           `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID      string          `gorm:"column:run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RegionSlug   string          `gorm:"column:region_slug;type:text;not null;index"`
	Mode         string          `gorm:"column:mode;type:text;not null;default:full"`
	StartedAt    time.Time       `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt   *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	Status       string          `gorm:"column:status;type:text;not null;default:running"`
	PhaseCounts  json.RawMessage `gorm:"column:phase_counts;type:jsonb"`
	ErrorMessage *string         `gorm:"column:error_message;type:text"`
}

func (WorkflowRun) TableName() string { return "editorial.workflow_runs" }

// SourceCheckpoint maps editorial.source_checkpoints. The external frequency
// gate reads last_run_at/last_fetched_at to decide whether discovery or
// collection should run for a region+category this cycle.
type SourceCheckpoint struct {
	RegionID      int64      `gorm:"column:region_id;type:bigint;primaryKey"`
	Category      string     `gorm:"column:category;type:text;primaryKey"`
	LastRunAt     *time.Time `gorm:"column:last_run_at;type:timestamptz"`
	LastFetchedAt *time.Time `gorm:"column:last_fetched_at;type:timestamptz"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (SourceCheckpoint) TableName() string { return "editorial.source_checkpoints" }

func autoMigrateModels() []any {
	return []any{
		&Region{},
		&RawSignal{},
		&Workspace{},
		&Venue{},
		&Performer{},
		&ArticleDraft{},
		&EventDraft{},
		&FactCheck{},
		&PublishedPost{},
		&WorkflowRun{},
		&SourceCheckpoint{},
	}
}
