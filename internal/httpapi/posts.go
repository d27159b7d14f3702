package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/labstack/echo/v4"

	"townbeat/internal/db"
)

type postListFilter struct {
	RegionID *int64
	Category string
	Breaking *bool
	Query    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type postItem struct {
	PostUUID    string     `json:"post_uuid"`
	RegionSlug  string     `json:"region_slug"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Excerpt     *string    `json:"excerpt,omitempty"`
	Category    string     `json:"category"`
	Breaking    bool       `json:"breaking"`
	ImageURL    *string    `json:"image_url,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
}

type postDetail struct {
	postItem
	Body        string   `json:"body"`
	SEOKeywords []string `json:"seo_keywords,omitempty"`
}

func (s *Server) handlePosts(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be <= to"})
	}

	filter := postListFilter{
		Category: strings.TrimSpace(strings.ToLower(c.QueryParam("category"))),
		Query:    strings.TrimSpace(c.QueryParam("q")),
		From:     from,
		To:       to,
		Page:     page,
		PageSize: pageSize,
	}

	if slug := strings.TrimSpace(strings.ToLower(c.QueryParam("region"))); slug != "" {
		region, err := s.regions.BySlug(c.Request().Context(), slug)
		if err != nil {
			s.logger.Error().Err(err).Str("region", slug).Msg("query region failed")
			return internalError(c, "Failed to load region")
		}
		if region == nil {
			return failNotFound(c, "Region not found")
		}
		filter.RegionID = &region.RegionID
	}

	if raw := strings.TrimSpace(strings.ToLower(c.QueryParam("breaking"))); raw != "" {
		switch raw {
		case "true", "1":
			yes := true
			filter.Breaking = &yes
		case "false", "0":
			no := false
			filter.Breaking = &no
		default:
			return failValidation(c, map[string]string{"breaking": "must be true or false"})
		}
	}

	total, items, err := s.queryPosts(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("query posts failed")
		return internalError(c, "Failed to load posts")
	}

	return success(c, map[string]any{
		"items":      items,
		"pagination": pagination(page, pageSize, total),
		"filters": map[string]any{
			"region":   strings.TrimSpace(strings.ToLower(c.QueryParam("region"))),
			"category": filter.Category,
			"q":        filter.Query,
			"from":     filter.From,
			"to":       filter.To,
		},
	})
}

func (s *Server) handlePostDetail(c echo.Context) error {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		return failValidation(c, map[string]string{"slug": "is required"})
	}

	const q = `
SELECT
	p.post_uuid::text,
	r.slug,
	p.slug,
	p.title,
	p.excerpt,
	p.category,
	p.breaking,
	p.image_url,
	p.published_at,
	p.body,
	p.seo_keywords
FROM editorial.published_posts p
JOIN editorial.regions r
	ON r.region_id = p.region_id
WHERE p.slug = ?
`

	var (
		detail      postDetail
		keywordsRaw []byte
	)
	err := s.pool.QueryRow(c.Request().Context(), q, slug).Scan(
		&detail.PostUUID,
		&detail.RegionSlug,
		&detail.Slug,
		&detail.Title,
		&detail.Excerpt,
		&detail.Category,
		&detail.Breaking,
		&detail.ImageURL,
		&detail.PublishedAt,
		&detail.Body,
		&keywordsRaw,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Post not found")
		}
		s.logger.Error().Err(err).Str("slug", slug).Msg("query post failed")
		return internalError(c, "Failed to load post")
	}

	if len(keywordsRaw) > 0 && string(keywordsRaw) != "null" {
		_ = json.Unmarshal(keywordsRaw, &detail.SEOKeywords)
	}
	return success(c, detail)
}

func (s *Server) queryPosts(ctx context.Context, filter postListFilter) (int64, []postItem, error) {
	countSQL, countArgs, err := buildPostCountQuery(filter)
	if err != nil {
		return 0, nil, fmt.Errorf("build post count query: %w", err)
	}
	var total int64
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count posts: %w", err)
	}

	listSQL, listArgs, err := buildPostListQuery(filter)
	if err != nil {
		return 0, nil, fmt.Errorf("build post list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return 0, nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	items := make([]postItem, 0, filter.PageSize)
	for rows.Next() {
		var row postItem
		if err := rows.Scan(
			&row.PostUUID,
			&row.RegionSlug,
			&row.Slug,
			&row.Title,
			&row.Excerpt,
			&row.Category,
			&row.Breaking,
			&row.ImageURL,
			&row.PublishedAt,
		); err != nil {
			return 0, nil, fmt.Errorf("scan post row: %w", err)
		}
		items = append(items, row)
	}
	return total, items, rows.Err()
}

func postBaseBuilder(filter postListFilter) sq.SelectBuilder {
	builder := sq.Select().
		From("editorial.published_posts p").
		Join("editorial.regions r ON r.region_id = p.region_id")

	if filter.RegionID != nil {
		builder = builder.Where(sq.Eq{"p.region_id": *filter.RegionID})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"p.category": filter.Category})
	}
	if filter.Breaking != nil {
		builder = builder.Where(sq.Eq{"p.breaking": *filter.Breaking})
	}
	if filter.Query != "" {
		builder = builder.Where(sq.ILike{"p.title": "%" + filter.Query + "%"})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"p.published_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"p.published_at": *filter.To})
	}
	return builder
}

func buildPostCountQuery(filter postListFilter) (string, []any, error) {
	return postBaseBuilder(filter).Columns("COUNT(*)").ToSql()
}

func buildPostListQuery(filter postListFilter) (string, []any, error) {
	offset := uint64((filter.Page - 1) * filter.PageSize)
	return postBaseBuilder(filter).
		Columns(
			"p.post_uuid::text",
			"r.slug",
			"p.slug",
			"p.title",
			"p.excerpt",
			"p.category",
			"p.breaking",
			"p.image_url",
			"p.published_at",
		).
		OrderBy("p.published_at DESC", "p.post_id DESC").
		Limit(uint64(filter.PageSize)).
		Offset(offset).
		ToSql()
}
