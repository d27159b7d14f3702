package httpapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/labstack/echo/v4"

	"townbeat/internal/draft"
)

type draftListFilter struct {
	RegionID int64
	Kind     draft.Kind
	Status   string
	Query    string
	Page     int
	PageSize int
}

type articleDraftItem struct {
	DraftUUID           string     `json:"draft_uuid"`
	Status              string     `json:"status"`
	SourceTitle         string     `json:"source_title"`
	GeneratedTitle      *string    `json:"generated_title,omitempty"`
	SourceURL           *string    `json:"source_url,omitempty"`
	QualityScore        *float64   `json:"quality_score,omitempty"`
	FactCheckConfidence *float64   `json:"fact_check_confidence,omitempty"`
	RejectionReason     *string    `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type eventDraftItem struct {
	DraftUUID            string     `json:"draft_uuid"`
	Status               string     `json:"status"`
	Title                string     `json:"title"`
	VenueName            *string    `json:"venue_name,omitempty"`
	PerformerName        *string    `json:"performer_name,omitempty"`
	StartsOn             *time.Time `json:"starts_on,omitempty"`
	StartsAt             *time.Time `json:"starts_at,omitempty"`
	ExtractionConfidence *float64   `json:"extraction_confidence,omitempty"`
	RejectionReason      *string    `json:"rejection_reason,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (s *Server) handleDrafts(c echo.Context) error {
	slug := strings.TrimSpace(strings.ToLower(c.QueryParam("region")))
	if slug == "" {
		return failValidation(c, map[string]string{"region": "is required"})
	}

	kind := draft.Kind(strings.TrimSpace(strings.ToLower(c.QueryParam("kind"))))
	if kind == "" {
		kind = draft.KindArticle
	}
	if kind != draft.KindArticle && kind != draft.KindEvent {
		return failValidation(c, map[string]string{"kind": "must be article or event"})
	}

	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	region, err := s.regions.BySlug(c.Request().Context(), slug)
	if err != nil {
		s.logger.Error().Err(err).Str("region", slug).Msg("query region failed")
		return internalError(c, "Failed to load region")
	}
	if region == nil {
		return failNotFound(c, "Region not found")
	}

	filter := draftListFilter{
		RegionID: region.RegionID,
		Kind:     kind,
		Status:   strings.TrimSpace(strings.ToLower(c.QueryParam("status"))),
		Query:    strings.TrimSpace(c.QueryParam("q")),
		Page:     page,
		PageSize: pageSize,
	}

	total, items, err := s.queryDrafts(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Str("region", slug).Msg("query drafts failed")
		return internalError(c, "Failed to load drafts")
	}

	return success(c, map[string]any{
		"items":      items,
		"pagination": pagination(page, pageSize, total),
		"filters": map[string]any{
			"region": slug,
			"kind":   string(kind),
			"status": filter.Status,
			"q":      filter.Query,
		},
	})
}

func (s *Server) queryDrafts(ctx context.Context, filter draftListFilter) (int64, any, error) {
	countSQL, countArgs, err := buildDraftCountQuery(filter)
	if err != nil {
		return 0, nil, fmt.Errorf("build draft count query: %w", err)
	}
	var total int64
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count drafts: %w", err)
	}

	listSQL, listArgs, err := buildDraftListQuery(filter)
	if err != nil {
		return 0, nil, fmt.Errorf("build draft list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return 0, nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	if filter.Kind == draft.KindArticle {
		items := make([]articleDraftItem, 0, filter.PageSize)
		for rows.Next() {
			var row articleDraftItem
			if err := rows.Scan(
				&row.DraftUUID,
				&row.Status,
				&row.SourceTitle,
				&row.GeneratedTitle,
				&row.SourceURL,
				&row.QualityScore,
				&row.FactCheckConfidence,
				&row.RejectionReason,
				&row.CreatedAt,
				&row.UpdatedAt,
			); err != nil {
				return 0, nil, fmt.Errorf("scan article draft: %w", err)
			}
			items = append(items, row)
		}
		return total, items, rows.Err()
	}

	items := make([]eventDraftItem, 0, filter.PageSize)
	for rows.Next() {
		var row eventDraftItem
		if err := rows.Scan(
			&row.DraftUUID,
			&row.Status,
			&row.Title,
			&row.VenueName,
			&row.PerformerName,
			&row.StartsOn,
			&row.StartsAt,
			&row.ExtractionConfidence,
			&row.RejectionReason,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return 0, nil, fmt.Errorf("scan event draft: %w", err)
		}
		items = append(items, row)
	}
	return total, items, rows.Err()
}

func draftBaseBuilder(filter draftListFilter) sq.SelectBuilder {
	table := "editorial.article_drafts"
	titleColumn := "source_title"
	if filter.Kind == draft.KindEvent {
		table = "editorial.event_drafts"
		titleColumn = "title"
	}

	builder := sq.Select().From(table).Where(sq.Eq{"region_id": filter.RegionID})
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Query != "" {
		builder = builder.Where(sq.ILike{titleColumn: "%" + filter.Query + "%"})
	}
	return builder
}

func buildDraftCountQuery(filter draftListFilter) (string, []any, error) {
	return draftBaseBuilder(filter).Columns("COUNT(*)").ToSql()
}

func buildDraftListQuery(filter draftListFilter) (string, []any, error) {
	offset := uint64((filter.Page - 1) * filter.PageSize)
	builder := draftBaseBuilder(filter)

	if filter.Kind == draft.KindArticle {
		builder = builder.Columns(
			"article_draft_uuid::text",
			"status",
			"source_title",
			"generated_title",
			"source_url",
			"quality_score",
			"fact_check_confidence",
			"rejection_reason",
			"created_at",
			"updated_at",
		).OrderBy("article_draft_id DESC")
	} else {
		builder = builder.Columns(
			"event_draft_uuid::text",
			"status",
			"title",
			"venue_name",
			"performer_name",
			"starts_on",
			"starts_at",
			"extraction_confidence",
			"rejection_reason",
			"created_at",
			"updated_at",
		).OrderBy("event_draft_id DESC")
	}

	return builder.Limit(uint64(filter.PageSize)).Offset(offset).ToSql()
}

func pagination(page, pageSize int, total int64) map[string]any {
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return map[string]any{
		"page":        page,
		"page_size":   pageSize,
		"total_items": total,
		"total_pages": totalPages,
	}
}
